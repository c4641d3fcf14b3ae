package limiter

import (
	"net/http"
	"strconv"
	"time"
)

// Standard response metadata header names.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Retry-After formats accepted by WithRetryAfterFormat.
const (
	RetryAfterDeltaSeconds = "delta-seconds"
	RetryAfterHTTPDate     = "http-date"
)

// HeaderWriter maps a Result into standardized response metadata. A zero
// Enabled field makes Write a no-op, so callers can attach it
// unconditionally.
type HeaderWriter struct {
	Enabled bool

	// Format selects how Retry-After is rendered: RetryAfterDeltaSeconds
	// (default) or RetryAfterHTTPDate.
	Format string

	now func() time.Time
}

// Write attaches limit, remaining and reset metadata to h, plus a
// Retry-After value when the request was denied. Exempt and failed-open
// results carry no meaningful quota figures and are skipped.
func (hw *HeaderWriter) Write(h http.Header, res *Result) {
	if !hw.Enabled || res == nil || res.Exempt || res.FailedOpen {
		return
	}
	if res.Limit.Amount == 0 {
		// No limit applied to the request; there is no quota to report.
		return
	}
	clock := hw.now
	if clock == nil {
		clock = time.Now
	}
	now := clock()

	h.Set(HeaderLimit, strconv.FormatInt(res.Limit.Amount, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(res.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(now.Add(res.ResetAfter).Unix(), 10))

	if !res.Allowed {
		h.Set(HeaderRetryAfter, hw.retryAfter(now, res.RetryAfter))
	}
}

func (hw *HeaderWriter) retryAfter(now time.Time, wait time.Duration) string {
	if hw.Format == RetryAfterHTTPDate {
		return now.Add(wait).UTC().Format(http.TimeFormat)
	}
	secs := int64(wait.Seconds())
	if wait > time.Duration(secs)*time.Second {
		secs++ // round up partial seconds so clients do not retry early
	}
	return strconv.FormatInt(secs, 10)
}
