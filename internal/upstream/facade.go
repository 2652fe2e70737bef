package upstream

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"aiportal.dev/internal/obs"
)

// UnexpectedMessage is what callers see for failures no decoder classified.
const UnexpectedMessage = "external system call failed"

// Facade is the single entry point business code uses for one upstream system.
type Facade struct {
	System string
}

// Op describes one façade invocation.
type Op struct {
	Name string
	// Token is the caller credential forwarded by CallerToken authorizers.
	Token string
	// Fields are key identifiers included in every log line of the call.
	Fields map[string]any
}

// Summary returns the fields logged on success, typically result cardinality.
type Summary[T any] func(T) map[string]any

// Run executes fn inside a call scope that is released on every exit path.
// Classified errors are returned as the same value; anything else, panics
// included, becomes an internal-unexpected error with the original as cause.
func Run[T any](ctx context.Context, f Facade, op Op, fn func(context.Context) (T, error), summarize Summary[T]) (res T, err error) {
	ctx, release := Acquire(ctx, CallContext{System: f.System, Operation: op.Name, Token: op.Token})
	defer release()

	cc, _ := CallFromContext(ctx)
	logger := obs.Logger().With().
		Str("system", f.System).
		Str("operation", op.Name).
		Str("correlation_id", cc.CorrelationID).
		Fields(op.Fields).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = zero
			cause := fmt.Errorf("panic: %v", r)
			logger.Error().Err(cause).Bytes("stack", debug.Stack()).Msg("external call panicked")
			err = f.unexpected(op, cause)
			obs.ObserveUpstream(f.System, op.Name, string(KindInternal), time.Since(start))
		}
	}()

	res, err = fn(ctx)
	elapsed := time.Since(start)
	if err == nil {
		ev := logger.Info().Dur("duration", elapsed)
		if summarize != nil {
			ev = ev.Fields(summarize(res))
		}
		ev.Msg("external call succeeded")
		obs.ObserveUpstream(f.System, op.Name, "ok", elapsed)
		return res, nil
	}

	var zero T
	if ue, ok := AsError(err); ok {
		logClassified(logger, ue, elapsed)
		obs.ObserveUpstream(f.System, op.Name, string(ue.Kind), elapsed)
		return zero, ue
	}

	logger.Error().Err(err).Str("error_detail", fmt.Sprintf("%+v", err)).Dur("duration", elapsed).Msg("external call failed unexpectedly")
	obs.ObserveUpstream(f.System, op.Name, string(KindInternal), elapsed)
	return zero, f.unexpected(op, err)
}

func logClassified(logger zerolog.Logger, ue *Error, elapsed time.Duration) {
	ev := logger.Warn()
	if ue.Kind == KindInternal {
		ev = logger.Error()
	}
	ev.Str("kind", string(ue.Kind)).
		Int("status", ue.Status).
		Str("upstream_message", ue.Message).
		Dur("duration", elapsed).
		Msg("external call failed")
}

func (f Facade) unexpected(op Op, cause error) *Error {
	return &Error{
		Kind:      KindInternal,
		Message:   UnexpectedMessage,
		System:    f.System,
		Operation: op.Name,
		Cause:     cause,
	}
}
