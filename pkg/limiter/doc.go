// Package limiter decides, for each incoming unit of work, whether it may
// proceed under the configured quotas.
//
// The primary entry point is the Engine:
//
//	res, err := engine.Check(ctx, &limiter.Request{Route: "/upload"})
//
// The returned Result contains whether the request is allowed, the most
// restrictive applicable limit, how much quota remains, and timing hints for
// callers that want to set rate-limit headers (for example, Retry-After).
//
// # Overview
//
// Quotas are written as human-readable strings ("20 per minute",
// "100/hour;1000/day") and parsed by the limits package. Each request is
// tracked against a partition key extracted by a caller-supplied function
// (client IP, API key, user id). Counting happens in a pluggable counter
// store — in-memory for single-process deployments and tests, Redis for a
// global budget across many instances.
//
// # Window Strategies
//
// Two interchangeable algorithms decide whether a key exceeded its quota:
//
//   - fixed-window: counts requests in epoch-aligned windows. O(1) state per
//     key, but a burst straddling a window boundary can briefly admit up to
//     2x the limit. That is a documented property of the algorithm.
//
//   - moving-window: estimates the trailing window from the current and
//     previous fixed windows, with the previous weighted by its remaining
//     overlap. Slightly approximate, but free of boundary bursts.
//
// Both strategies leave counters untouched for denied requests: the atomic
// increment that detects the overflow is compensated immediately, so a denied
// request never consumes quota.
//
// # Route Configuration
//
// Default limits apply to every route; individual routes register their own
// limits, key functions, cost weights and exemption predicates:
//
//	engine.RegisterRoute("/upload",
//		limiter.WithLimit("20 per minute"),
//		limiter.WithCost(2),
//		limiter.WithExemptWhen(isAdmin),
//	)
//
// Route limits replace the defaults unless WithOverrideDefaults(false) keeps
// them. Application limits (WithApplicationLimits) always apply, tracked per
// partition key across all routes.
//
// # Degradation
//
// With WithInMemoryFallback enabled, a failing primary store flips the engine
// to a process-local store so admission keeps working with local visibility.
// Optional fallback limits tighten quotas during the outage. The engine
// probes the primary with exponential backoff and switches back on recovery,
// discarding fallback-period counts.
//
// # Error Policy
//
// A deny is not an error: Check reports it in the Result with a nil error, so
// calling code can always tell "blocked by policy" from "infrastructure
// degraded". Internal failures (store unreachable, key function panic-free
// errors) follow the fail-open/fail-closed flag: with WithSwallowErrors(true)
// they admit the request and mark the Result FailedOpen, otherwise they
// propagate, matching store.ErrStoreUnavailable where applicable. Malformed
// limit strings fail construction or registration immediately and are never
// swallowed.
//
// # Concurrency
//
// Engines are safe for concurrent use. The correctness-critical boundary is
// the counter store's increment, which is atomic in every backend; under N
// concurrent requests racing on a key with M remaining slots, at most M are
// admitted. The fallback activation flag is the only shared mutable state and
// is read and written through atomics.
package limiter
