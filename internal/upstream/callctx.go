package upstream

import (
	"context"
	"sync"

	"aiportal.dev/internal/ids"
)

// CallContext is the request-scoped credential and metadata for one outbound call.
type CallContext struct {
	System        string
	Operation     string
	Token         string
	CorrelationID string
}

// Release ends a call scope. Calling it more than once is a no-op.
type Release func()

type scope struct {
	mu       sync.RWMutex
	call     *CallContext
	released bool
}

type scopeKey struct{}

type correlationKey struct{}

// WithCorrelationID records the inbound request id that call scopes acquired
// under ctx adopt as their correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// Acquire attaches cc to a child of ctx. The returned Release must be deferred
// by the caller; after it runs the call context is no longer observable
// through the returned context or any context derived from it.
func Acquire(ctx context.Context, cc CallContext) (context.Context, Release) {
	if cc.CorrelationID == "" {
		if parent, ok := CallFromContext(ctx); ok && parent.CorrelationID != "" {
			cc.CorrelationID = parent.CorrelationID
		} else if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
			cc.CorrelationID = id
		} else {
			cc.CorrelationID = ids.New()
		}
	}
	s := &scope{call: &cc}
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.call = nil
			s.released = true
			s.mu.Unlock()
		})
	}
	return context.WithValue(ctx, scopeKey{}, s), release
}

// CallFromContext returns a copy of the live call context carried by ctx.
func CallFromContext(ctx context.Context) (CallContext, bool) {
	if ctx == nil {
		return CallContext{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return CallContext{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.call == nil {
		return CallContext{}, false
	}
	return *s.call, true
}

// Released reports whether ctx carries a call scope that has been released.
func Released(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}
