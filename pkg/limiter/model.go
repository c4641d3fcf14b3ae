package limiter

import (
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
)

// Request describes one unit of work presented for admission. The engine is
// transport-agnostic: an HTTP middleware fills Route/Method from the matched
// route, a job runner might use the job name.
type Request struct {
	// Route identifies the registered route (or logical operation).
	Route string

	// Method is the call method (e.g. HTTP verb). Only consulted when the
	// route registration sets PerMethod or restricts Methods.
	Method string

	// Data carries the caller's own request object for key, cost and
	// exemption functions to inspect.
	Data any
}

// KeyFunc extracts the partition key a quota is tracked against, such as a
// client IP or API key.
type KeyFunc func(r *Request) (string, error)

// CostFunc computes the cost weight of a request. Costs are >= 0; a cost of
// zero checks the limit without consuming it.
type CostFunc func(r *Request) int64

// ExemptFunc reports whether a request bypasses rate limiting entirely.
type ExemptFunc func(r *Request) bool

// LimitFunc resolves a limit string dynamically, once per check.
type LimitFunc func(r *Request) string

// Decision is the outcome of checking a single limit spec for a key.
type Decision struct {
	Allowed    bool
	Limit      limits.Limit
	Remaining  int64
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Result is the aggregated admission outcome for one request. When several
// specs apply, Limit/Remaining/ResetAfter describe the most restrictive one.
type Result struct {
	Allowed bool

	// Exempt is set when an exemption predicate admitted the request without
	// touching any counter.
	Exempt bool

	// FailedOpen is set when an internal error was swallowed and the request
	// admitted by policy rather than by quota. Metrics and logs distinguish
	// this from a legitimate allow.
	FailedOpen bool

	Limit      limits.Limit
	Remaining  int64
	ResetAfter time.Duration
	RetryAfter time.Duration

	// ErrorMessage carries the route's configured denial message, if any.
	ErrorMessage string
}

// Err returns nil for admitted requests and a *LimitExceededError for denied
// ones, so callers that prefer error flow can use errors.Is against
// ErrRateLimitExceeded.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &LimitExceededError{
		Limit:      r.Limit,
		RetryAfter: r.RetryAfter,
		Message:    r.ErrorMessage,
	}
}
