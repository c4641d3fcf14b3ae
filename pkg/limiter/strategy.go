package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

// Strategy names accepted by WithStrategy.
const (
	StrategyFixedWindow  = "fixed-window"
	StrategyMovingWindow = "moving-window"
)

// Strategy evaluates one limit spec for one key against a counter store and
// produces an admission decision with remaining-quota and reset-time figures.
//
// Implementations must not consume quota for denied requests: when the
// store's increment intrinsically combines check and consume, the strategy
// issues a compensating decrement on the deny path.
type Strategy interface {
	Check(ctx context.Context, st store.Store, key string, lim limits.Limit, cost int64) (Decision, error)
	Name() string
}

// NewStrategy resolves a strategy by its configuration name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case StrategyFixedWindow, "":
		return NewFixedWindow(), nil
	case StrategyMovingWindow:
		return NewMovingWindow(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// bucketKey suffixes the effective key with the window length and window
// start so distinct specs on one route, and successive windows of one spec,
// never share a counter.
func bucketKey(key string, window time.Duration, start time.Time) string {
	return key + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + strconv.FormatInt(start.Unix(), 10)
}
