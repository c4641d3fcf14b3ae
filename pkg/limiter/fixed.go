package limiter

import (
	"context"
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

// FixedWindow counts requests in fixed windows aligned to the epoch. It is
// O(1) per key but permits up to a 2x burst straddling a window boundary;
// that is a documented property of the algorithm, not a bug. Use
// MovingWindow where boundary bursts matter.
type FixedWindow struct {
	now func() time.Time
}

// NewFixedWindow creates the fixed-window strategy.
func NewFixedWindow() *FixedWindow {
	return &FixedWindow{now: time.Now}
}

func (f *FixedWindow) Name() string { return StrategyFixedWindow }

func (f *FixedWindow) Check(ctx context.Context, st store.Store, key string, lim limits.Limit, cost int64) (Decision, error) {
	window := lim.Window()
	now := f.now()
	start := now.Truncate(window)
	bucket := bucketKey(key, window, start)

	count, ttl, err := st.Incr(ctx, bucket, window, cost)
	if err != nil {
		return Decision{}, err
	}

	allowed := count <= lim.Amount
	if !allowed && cost > 0 {
		// The increment consumed quota before we could tell it was over the
		// limit; undo it so the denied request leaves the counter unchanged.
		if _, _, derr := st.Incr(ctx, bucket, window, -cost); derr != nil {
			return Decision{}, derr
		}
		count -= cost
	}

	resetAfter := ttl
	if resetAfter <= 0 {
		resetAfter = start.Add(window).Sub(now)
	}

	dec := Decision{
		Allowed:    allowed,
		Limit:      lim,
		Remaining:  max(0, lim.Amount-count),
		ResetAfter: resetAfter,
	}
	if !allowed {
		dec.RetryAfter = resetAfter
	}
	return dec, nil
}
