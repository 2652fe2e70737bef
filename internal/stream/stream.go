// Package stream fans events out to subscribers, such as SSE clients.
package stream

import (
	"context"
	"sync"
	"time"
)

const bufferSize = 16

type subscriber[T any] struct {
	ch   chan T
	done <-chan struct{}
	once sync.Once
}

func (s *subscriber[T]) close() {
	s.once.Do(func() { close(s.ch) })
}

// Stream fans out events to all active subscribers. The latest event is
// retained and replayed to late subscribers.
type Stream[T any] struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber[T]
	next   int
	last   *T
	closed bool
}

// New initialises an empty stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]*subscriber[T])}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when ctx ends or the stream is closed.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan T {
	sub := &subscriber[T]{ch: make(chan T, bufferSize), done: ctx.Done()}

	s.mu.Lock()
	if s.last != nil {
		sub.ch <- *s.last
	}
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub.ch
	}
	id := s.next
	s.next++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.close()
	}()

	return sub.ch
}

// Publish fans the event out to all subscribers. Slow subscribers miss events
// rather than block the publisher.
func (s *Stream[T]) Publish(evt T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = &evt
	for _, sub := range s.subs {
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Finish publishes a last event and closes the stream. Unlike Publish it
// waits, up to timeout in total, for subscribers whose buffer is full.
func (s *Stream[T]) Finish(evt T, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = &evt
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	expired := false
	for _, sub := range s.subs {
		if expired {
			select {
			case sub.ch <- evt:
			default:
			}
			continue
		}
		select {
		case sub.ch <- evt:
		case <-sub.done:
		case <-deadline.C:
			expired = true
		}
	}
	s.closeLocked()
}

// Len is the number of active subscribers.
func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close ends every subscription. Later subscribers receive the last event
// and a closed channel.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
}

func (s *Stream[T]) closeLocked() {
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.close()
	}
}
