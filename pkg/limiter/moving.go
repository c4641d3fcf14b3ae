package limiter

import (
	"context"
	"math"
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

// MovingWindow approximates the number of requests in the trailing window
// from two fixed sub-windows: the current one and the previous one, the
// previous weighted by how much of it still overlaps the trailing window
// (the weighted two-bucket estimate):
//
//	estimate = ceil(previous * (1 - elapsed/window)) + current
//
// The previous bucket's contribution is rounded up, so the estimate never
// undercounts a uniformly spread previous window and the strategy admits at
// most Amount requests across any boundary-straddling burst, where a fixed
// window would admit up to 2x. The estimate is approximate, not exact: it
// assumes requests in the previous window arrived uniformly, so it can
// overcount by up to the previous window's total when that traffic was
// front-loaded. The error bound is exercised in tests.
type MovingWindow struct {
	now func() time.Time
}

// NewMovingWindow creates the moving-window strategy.
func NewMovingWindow() *MovingWindow {
	return &MovingWindow{now: time.Now}
}

func (m *MovingWindow) Name() string { return StrategyMovingWindow }

func (m *MovingWindow) Check(ctx context.Context, st store.Store, key string, lim limits.Limit, cost int64) (Decision, error) {
	window := lim.Window()
	now := m.now()
	start := now.Truncate(window)
	elapsed := now.Sub(start)

	curBucket := bucketKey(key, window, start)
	prevBucket := bucketKey(key, window, start.Add(-window))

	prev, _, err := st.Get(ctx, prevBucket)
	if err != nil {
		return Decision{}, err
	}

	// Buckets live two windows so the previous bucket is still readable
	// throughout the current one.
	cur, _, err := st.Incr(ctx, curBucket, 2*window, cost)
	if err != nil {
		return Decision{}, err
	}

	weight := 1 - float64(elapsed)/float64(window)
	weighted := int64(math.Ceil(float64(prev) * weight))
	estimate := weighted + cur

	allowed := estimate <= lim.Amount
	if !allowed && cost > 0 {
		if _, _, derr := st.Incr(ctx, curBucket, 2*window, -cost); derr != nil {
			return Decision{}, derr
		}
		cur -= cost
		estimate -= cost
	}

	dec := Decision{
		Allowed:    allowed,
		Limit:      lim,
		Remaining:  max(0, lim.Amount-estimate),
		ResetAfter: window - elapsed,
	}
	if !allowed {
		dec.RetryAfter = m.retryAfter(lim, window, elapsed, prev, weighted, cur, cost)
	}
	return dec, nil
}

// retryAfter estimates when the weighted previous-window contribution will
// have decayed enough to admit a request of the given cost.
func (m *MovingWindow) retryAfter(lim limits.Limit, window, elapsed time.Duration, prev, weighted, cur, cost int64) time.Duration {
	deficit := weighted + cur + cost - lim.Amount
	if deficit <= 0 {
		return 0
	}
	if prev > 0 && deficit <= weighted {
		// The previous bucket decays linearly at prev/window per unit time.
		wait := time.Duration(float64(deficit) / float64(prev) * float64(window))
		if wait < window-elapsed {
			return wait
		}
	}
	// The current bucket only stops counting once the window advances.
	return window - elapsed
}
