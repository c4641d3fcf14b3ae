// Package limits parses human-readable quota strings into structured limit
// specs.
//
// A limit string describes how many requests are allowed per time window:
//
//	"10 per minute"
//	"100/hour"
//	"3 per 5 minutes"
//	"100/hour;1000/day"
//
// Multiple specs combined with ";" or "," must all pass for a request to be
// admitted. Parsing is pure: the same input always yields the same specs, so
// results are safe to cache by input string.
package limits

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is a canonical time unit for a limit window.
type Period int

const (
	Second Period = iota
	Minute
	Hour
	Day
	Month
	Year
)

// Duration returns the length of one period. Month and Year use the fixed
// 30-day and 365-day conventions so windows stay stable across calendars.
func (p Period) Duration() time.Duration {
	switch p {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	case Year:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

func (p Period) String() string {
	switch p {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return "unknown"
	}
}

// Limit is a single parsed quota: Amount requests per Count periods.
// Immutable once parsed.
type Limit struct {
	Amount int64
	Count  int64
	Period Period
}

// Window returns the total window duration covered by the limit.
func (l Limit) Window() time.Duration {
	return time.Duration(l.Count) * l.Period.Duration()
}

// String renders the canonical form, which Parse accepts unchanged.
func (l Limit) String() string {
	if l.Count > 1 {
		return fmt.Sprintf("%d per %d %ss", l.Amount, l.Count, l.Period)
	}
	return fmt.Sprintf("%d per %s", l.Amount, l.Period)
}

// ParseError reports a malformed limit string. It always indicates a
// configuration mistake and is never swallowed by callers.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid limit %q: %s", e.Input, e.Reason)
}

var periodAliases = map[string]Period{
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
	"m": Minute, "min": Minute, "mins": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hr": Hour, "hrs": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"mo": Month, "month": Month, "months": Month,
	"y": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
}

// AMOUNT ("/" | " per ") [COUNT] PERIOD
var specPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(?:/|\s+per\s+)\s*(\d+\s+)?([a-zA-Z]+)\s*$`)

// Parse turns a single spec string like "10 per minute" into a Limit.
func Parse(s string) (Limit, error) {
	match := specPattern.FindStringSubmatch(s)
	if match == nil {
		return Limit{}, &ParseError{Input: s, Reason: "expected AMOUNT per [COUNT] PERIOD"}
	}

	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || amount <= 0 {
		return Limit{}, &ParseError{Input: s, Reason: "amount must be a positive integer"}
	}

	count := int64(1)
	if raw := strings.TrimSpace(match[2]); raw != "" {
		count, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || count < 1 {
			return Limit{}, &ParseError{Input: s, Reason: "period count must be >= 1"}
		}
	}

	period, ok := periodAliases[strings.ToLower(match[3])]
	if !ok {
		return Limit{}, &ParseError{Input: s, Reason: fmt.Sprintf("unknown period unit %q", match[3])}
	}

	return Limit{Amount: amount, Count: count, Period: period}, nil
}

// ParseMany splits a combined spec string on ";" or "," and parses each part.
// All returned limits must pass for admission; order is preserved.
func ParseMany(s string) ([]Limit, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &ParseError{Input: s, Reason: "empty limit string"}
	}

	parts := strings.Split(strings.ReplaceAll(s, ",", ";"), ";")

	out := make([]Limit, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, &ParseError{Input: s, Reason: "empty spec between separators"}
		}
		lim, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, lim)
	}
	return out, nil
}
