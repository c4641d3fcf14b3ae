package limiter

import (
	"errors"
	"fmt"
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
)

// ErrRateLimitExceeded marks a legitimate deny. It is always delivered
// distinctly from infrastructure errors so callers can tell "blocked by
// policy" from "store degraded".
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// LimitExceededError carries the spec that triggered a denial and the retry
// timing for it.
type LimitExceededError struct {
	Limit      limits.Limit
	RetryAfter time.Duration
	Message    string
}

func (e *LimitExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limit exceeded: %s (retry after %s)", e.Limit, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

// KeyFuncError wraps a failure in a caller-supplied key extraction function.
// It is treated as an internal error, subject to the swallow-errors policy.
type KeyFuncError struct {
	Err error
}

func (e *KeyFuncError) Error() string { return fmt.Sprintf("key func: %v", e.Err) }

func (e *KeyFuncError) Unwrap() error { return e.Err }
