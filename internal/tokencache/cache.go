package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"aiportal.dev/internal/obs"
)

// Store persists entries across restarts.
type Store interface {
	Load(ctx context.Context, subject string) (Entry, error)
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, subject string) error
}

// RefreshFunc obtains a new entry. prior is the last known entry for the
// subject, possibly expired, and ok is false when there was none.
type RefreshFunc func(ctx context.Context, prior Entry, ok bool) (Entry, error)

// Cache is safe for concurrent use. Readers never block: they load an
// immutable snapshot. Writers copy the snapshot under a mutex and swap it.
type Cache struct {
	snap  atomic.Pointer[map[string]Entry]
	mu    sync.Mutex
	group singleflight.Group
	store Store
	skew  time.Duration
	now   func() time.Time

	refreshTimeout time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore enables persistence.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithSkew overrides DefaultSkew.
func WithSkew(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.skew = d
		}
	}
}

// WithRefreshTimeout bounds a shared refresh, which outlives the caller that
// started it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{skew: DefaultSkew, now: time.Now, refreshTimeout: DefaultRefreshTimeout}
	empty := map[string]Entry{}
	c.snap.Store(&empty)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for subject, valid or not.
func (c *Cache) Get(subject string) (Entry, bool) {
	e, ok := (*c.snap.Load())[subject]
	return e, ok
}

// Put stores e under e.Subject.
func (c *Cache) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swap(func(m map[string]Entry) { m[e.Subject] = e })
}

// Invalidate re-issues the entry for subject flagged as expired so the next
// Token call refreshes it. The persisted copy, if any, is removed.
func (c *Cache) Invalidate(ctx context.Context, subject string) {
	c.mu.Lock()
	c.swap(func(m map[string]Entry) {
		if e, ok := m[subject]; ok {
			m[subject] = e.MarkExpired()
		}
	})
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, subject); err != nil && !errors.Is(err, ErrNotFound) {
			obs.Logger().Warn().Err(err).Str("subject", subject).Msg("token delete failed")
		}
	}
}

// Len is the number of entries, expired ones included.
func (c *Cache) Len() int {
	return len(*c.snap.Load())
}

// Token returns a valid entry for subject, refreshing it when the cached one
// is missing or about to expire. Concurrent refreshes for one subject
// collapse into a single upstream call. The shared refresh is detached from
// the cancellation of whichever caller started it; each caller still returns
// as soon as its own ctx is done.
func (c *Cache) Token(ctx context.Context, subject string, refresh RefreshFunc) (Entry, error) {
	if e, ok := c.Get(subject); ok && e.ValidFor(c.now(), c.skew) {
		return e, nil
	}
	ch := c.group.DoChan(subject, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.fill(fillCtx, subject, refresh)
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

func (c *Cache) fill(ctx context.Context, subject string, refresh RefreshFunc) (Entry, error) {
	prior, ok := c.Get(subject)
	if ok && prior.ValidFor(c.now(), c.skew) {
		return prior, nil
	}
	if !ok && c.store != nil {
		stored, err := c.store.Load(ctx, subject)
		switch {
		case err == nil:
			prior, ok = stored, true
			if stored.ValidFor(c.now(), c.skew) {
				c.Put(stored)
				return stored, nil
			}
		case !errors.Is(err, ErrNotFound):
			obs.Logger().Warn().Err(err).Str("subject", subject).Msg("token load failed")
		}
	}

	next, err := refresh(ctx, prior, ok)
	if err != nil {
		return Entry{}, err
	}
	next.Subject = subject
	next.Expired = false
	if next.IssuedAt.IsZero() {
		next.IssuedAt = c.now()
	}
	if !next.ValidFor(c.now(), c.skew) {
		return Entry{}, fmt.Errorf("tokencache: refreshed token for %s is already expired", subject)
	}
	c.Put(next)
	if c.store != nil {
		if err := c.store.Save(ctx, next); err != nil {
			obs.Logger().Warn().Err(err).Str("subject", subject).Msg("token save failed")
		}
	}
	return next, nil
}

// swap must be called with c.mu held.
func (c *Cache) swap(mutate func(map[string]Entry)) {
	cur := *c.snap.Load()
	next := make(map[string]Entry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	mutate(next)
	c.snap.Store(&next)
}
