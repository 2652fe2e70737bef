package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiportal.dev/internal/ids"
)

func TestAcquireAndRelease(t *testing.T) {
	ctx, release := Acquire(context.Background(), CallContext{System: "datumo", Token: "tok-a"})
	derived, cancel := context.WithCancel(ctx)
	defer cancel()

	cc, ok := CallFromContext(derived)
	require.True(t, ok)
	assert.Equal(t, "tok-a", cc.Token)
	assert.True(t, ids.Valid(cc.CorrelationID))
	assert.False(t, Released(ctx))

	release()
	release()

	_, ok = CallFromContext(ctx)
	assert.False(t, ok)
	_, ok = CallFromContext(derived)
	assert.False(t, ok)
	assert.True(t, Released(derived))
}

func TestAcquireInheritsCorrelationID(t *testing.T) {
	outer, releaseOuter := Acquire(context.Background(), CallContext{CorrelationID: "corr-1"})
	defer releaseOuter()

	inner, releaseInner := Acquire(outer, CallContext{System: "sktai", Token: "t"})
	defer releaseInner()

	cc, ok := CallFromContext(inner)
	require.True(t, ok)
	assert.Equal(t, "corr-1", cc.CorrelationID)
	assert.Equal(t, "sktai", cc.System)
}

func TestAcquireAdoptsRequestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-9")
	ctx, release := Acquire(ctx, CallContext{System: "approval"})
	defer release()

	cc, ok := CallFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-9", cc.CorrelationID)
}

func TestCallFromContextWithoutScope(t *testing.T) {
	_, ok := CallFromContext(context.Background())
	assert.False(t, ok)
	assert.False(t, Released(context.Background()))
}
