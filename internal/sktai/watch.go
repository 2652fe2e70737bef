package sktai

import (
	"context"
	"sync"
	"time"

	"aiportal.dev/internal/obs"
	"aiportal.dev/internal/stream"
	"aiportal.dev/internal/upstream"
)

const (
	// DefaultWatchInterval is how often a watched job is polled.
	DefaultWatchInterval = 2 * time.Second
	maxPollFailures      = 5
	pollTimeout          = 30 * time.Second
	// how long the last update waits for a subscriber with a full buffer
	finalSendTimeout = 5 * time.Second
)

// JobUpdate is one observation of an import job. Err is set on the last
// update when polling gave up.
type JobUpdate struct {
	Job ImportJob
	Err error
}

type jobGetter interface {
	GetImportJob(ctx context.Context, id string) (ImportJob, error)
}

// JobWatcher polls import jobs on behalf of any number of watchers. Each job
// has at most one poller, which stops once the job is terminal or nobody is
// watching.
type JobWatcher struct {
	jobs     jobGetter
	interval time.Duration

	mu      sync.Mutex
	watches map[string]*stream.Stream[JobUpdate]
}

func NewJobWatcher(jobs jobGetter, interval time.Duration) *JobWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &JobWatcher{
		jobs:     jobs,
		interval: interval,
		watches:  make(map[string]*stream.Stream[JobUpdate]),
	}
}

// Watch streams changes of job id until it is terminal, polling fails for
// good or ctx ends. The channel is closed afterwards.
func (w *JobWatcher) Watch(ctx context.Context, id string) <-chan JobUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.watches[id]; ok {
		return s.Subscribe(ctx)
	}
	s := stream.New[JobUpdate]()
	w.watches[id] = s
	ch := s.Subscribe(ctx)
	go w.poll(id, s)
	return ch
}

func (w *JobWatcher) poll(id string, s *stream.Stream[JobUpdate]) {
	defer w.stop(id, s)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		last     ImportJob
		seen     bool
		failures int
	)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		job, err := w.jobs.GetImportJob(ctx, id)
		cancel()

		if err != nil {
			failures++
			if upstream.KindOf(err) == upstream.KindClient || failures >= maxPollFailures {
				if !seen {
					last = ImportJob{ID: id}
				}
				s.Finish(JobUpdate{Job: last, Err: err}, finalSendTimeout)
				return
			}
			obs.Logger().Warn().Err(err).Str("job_id", id).Int("failures", failures).Msg("import job poll failed")
		} else {
			failures = 0
			if job.Status.Terminal() {
				if !seen || changed(last, job) {
					s.Finish(JobUpdate{Job: job}, finalSendTimeout)
				}
				return
			}
			if !seen || changed(last, job) {
				s.Publish(JobUpdate{Job: job})
				last, seen = job, true
			}
		}

		<-ticker.C
		if w.idle(id, s) {
			return
		}
	}
}

func (w *JobWatcher) idle(id string, s *stream.Stream[JobUpdate]) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Len() > 0 {
		return false
	}
	if w.watches[id] == s {
		delete(w.watches, id)
	}
	return true
}

func (w *JobWatcher) stop(id string, s *stream.Stream[JobUpdate]) {
	w.mu.Lock()
	if w.watches[id] == s {
		delete(w.watches, id)
	}
	w.mu.Unlock()
	s.Close()
}

func changed(a, b ImportJob) bool {
	return a.Status != b.Status || a.Progress != b.Progress || a.Message != b.Message
}
