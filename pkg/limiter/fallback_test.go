package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_FallbackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	e, err := New(clientKey,
		WithStore(fs),
		WithDefaultLimits("100 per hour"),
		WithInMemoryFallback("2 per hour"),
	)
	require.NoError(t, err)

	req := &Request{Route: "/x"}

	// Healthy: counting happens on the primary under the normal limits.
	res, err := e.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, int64(99), res.Remaining)
	assert.False(t, e.FallbackState().Active)

	// Primary goes down: the same check activates fallback and is served
	// from the local store under the tighter fallback limits.
	fs.healthy.Store(false)

	res, err = e.Check(ctx, req)
	require.NoError(t, err, "fallback absorbs the store failure")
	require.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.Limit.Amount, "fallback limits apply while degraded")
	assert.True(t, e.FallbackState().Active)

	res, err = e.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = e.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "the tightened fallback quota is enforced locally")
}

func TestEngine_FallbackRecovery(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	e, err := New(clientKey,
		WithStore(fs),
		WithDefaultLimits("100 per hour"),
		WithInMemoryFallback("2 per hour"),
	)
	require.NoError(t, err)

	req := &Request{Route: "/x"}

	res, err := e.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	fs.healthy.Store(false)
	_, err = e.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, e.FallbackState().Active)
	assert.Positive(t, e.FallbackState().FailureStreak)

	// Primary recovers; make the next probe due immediately.
	fs.healthy.Store(true)
	e.fallback.nextProbe.Store(time.Now().Add(-time.Second).UnixNano())

	res, err = e.Check(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.False(t, e.FallbackState().Active, "probe success leaves fallback")
	assert.Equal(t, int64(0), e.FallbackState().FailureStreak)

	// Back on the primary: the count resumes from before the outage (one
	// consumed pre-outage, one just now); fallback-period counts are gone.
	assert.Equal(t, int64(100), res.Limit.Amount)
	assert.Equal(t, int64(98), res.Remaining)
	assert.Equal(t, 0, e.local.Len(), "fallback counters are discarded on recovery")
}

func TestEngine_FallbackWithoutSpecsKeepsNormalLimits(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	e, err := New(clientKey,
		WithStore(fs),
		WithDefaultLimits("3 per hour"),
		WithInMemoryFallback(""),
	)
	require.NoError(t, err)

	fs.healthy.Store(false)
	req := &Request{Route: "/x"}

	allowed := 0
	for i := 0; i < 5; i++ {
		res, err := e.Check(ctx, req)
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed, "normal limits enforced against the local store")
}

func TestFallbackCoordinator_ProbeBackoff(t *testing.T) {
	fs := newFlakyStore()
	fs.healthy.Store(false)
	local := newEngineLocal(t, fs)

	fc := local.fallback
	base := time.Now()
	fc.now = func() time.Time { return base }

	fc.OnFailure()
	require.True(t, fc.Active())
	firstDue := fc.nextProbe.Load()

	// A probe before the due time is a no-op.
	fc.MaybeProbe(context.Background())
	assert.Equal(t, firstDue, fc.nextProbe.Load())

	// A failing probe doubles the interval.
	fc.now = func() time.Time { return time.Unix(0, firstDue).Add(time.Millisecond) }
	fc.MaybeProbe(context.Background())
	assert.True(t, fc.Active())
	assert.Equal(t, int64(2*initialProbeInterval), fc.probeInterval.Load())
}

func newEngineLocal(t *testing.T, fs *flakyStore) *Engine {
	t.Helper()
	e, err := New(clientKey,
		WithStore(fs),
		WithDefaultLimits("10 per hour"),
		WithInMemoryFallback("2 per hour"),
	)
	require.NoError(t, err)
	return e
}
