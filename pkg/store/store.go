// Package store defines the counter store contract used by the rate limiter
// and provides in-memory and Redis backends.
//
// A Store owns the atomicity guarantee for Incr: under concurrent callers
// racing on the same key with M remaining slots, at most M may observe a
// post-increment count within the limit. The engine never performs a
// read-then-write sequence against a backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable marks transient backend failures (network, timeout,
// protocol). Callers match it with errors.Is.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// UnavailableError wraps a backend failure with the operation that hit it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// Store is the minimal contract every counter backend implements.
type Store interface {
	// Incr atomically adds amount to the counter for key, creating it with
	// the given window as TTL if absent, and returns the post-increment
	// count and the remaining TTL. A negative amount performs a compensating
	// decrement; counters never go below zero.
	Incr(ctx context.Context, key string, window time.Duration, amount int64) (int64, time.Duration, error)

	// Get returns the current count and remaining TTL for key. A missing or
	// expired key reports a zero count with no error.
	Get(ctx context.Context, key string) (int64, time.Duration, error)

	// Reset clears the counter for key. Administrative use only.
	Reset(ctx context.Context, key string) error

	// Ping reports backend liveness.
	Ping(ctx context.Context) error
}
