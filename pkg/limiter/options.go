package limiter

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

type config struct {
	defaultLimits     []limits.Limit
	applicationLimits []limits.Limit
	fallbackLimits    []limits.Limit
	fallbackEnabled   bool

	headersEnabled   bool
	retryAfterFormat string
	strategyName     string
	keyPrefix        string
	enabled          bool
	autoCheck        bool
	swallowErrors    bool

	store        store.Store
	storageURI   string
	storeTimeout time.Duration

	logger   *zap.Logger
	recorder MetricsRecorder
}

func defaultConfig() config {
	return config{
		retryAfterFormat: RetryAfterDeltaSeconds,
		strategyName:     StrategyFixedWindow,
		enabled:          true,
		autoCheck:        true,
		logger:           zap.NewNop(),
		recorder:         &NoOpMetricsRecorder{},
	}
}

// Option customizes an Engine at construction time. Malformed limit strings
// fail New immediately: they are configuration mistakes, never swallowed.
type Option func(*config) error

// WithDefaultLimits sets the limits applied to routes without their own
// registration (and merged into routes that keep defaults).
func WithDefaultLimits(spec string) Option {
	return func(c *config) error {
		parsed, err := limits.ParseMany(spec)
		if err != nil {
			return err
		}
		c.defaultLimits = parsed
		return nil
	}
}

// WithApplicationLimits sets global limits tracked per partition key across
// all routes, independent of per-route limits.
func WithApplicationLimits(spec string) Option {
	return func(c *config) error {
		parsed, err := limits.ParseMany(spec)
		if err != nil {
			return err
		}
		c.applicationLimits = parsed
		return nil
	}
}

// WithHeadersEnabled controls whether the engine's HeaderWriter emits
// X-RateLimit-* metadata.
func WithHeadersEnabled(enabled bool) Option {
	return func(c *config) error {
		c.headersEnabled = enabled
		return nil
	}
}

// WithStrategy selects the windowing algorithm: StrategyFixedWindow or
// StrategyMovingWindow.
func WithStrategy(name string) Option {
	return func(c *config) error {
		if _, err := NewStrategy(name); err != nil {
			return err
		}
		c.strategyName = name
		return nil
	}
}

// WithStore injects a counter store. The caller keeps ownership.
func WithStore(st store.Store) Option {
	return func(c *config) error {
		c.store = st
		return nil
	}
}

// WithStorageURI connects the engine to a distributed backend, e.g.
// "redis://localhost:6379/0". The engine owns the resulting store and closes
// it on Close. Absent both this and WithStore, counting is in-memory only.
func WithStorageURI(uri string) Option {
	return func(c *config) error {
		c.storageURI = uri
		return nil
	}
}

// WithStoreTimeout bounds each operation against the distributed backend.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("store timeout must be positive, got %v", d)
		}
		c.storeTimeout = d
		return nil
	}
}

// WithAutoCheck controls whether integrations run the engine automatically on
// every call (true, the default) or require an explicit manual check. The
// engine only records the flag; it changes no algorithmic behavior.
func WithAutoCheck(auto bool) Option {
	return func(c *config) error {
		c.autoCheck = auto
		return nil
	}
}

// WithSwallowErrors selects fail-open behavior: internal errors (store,
// key-func) admit the request instead of propagating. Denials are never
// swallowed.
func WithSwallowErrors(swallow bool) Option {
	return func(c *config) error {
		c.swallowErrors = swallow
		return nil
	}
}

// WithInMemoryFallback enables degraded-mode counting on a local store when
// the primary backend is unreachable. The spec string, when non-empty,
// replaces the normal limits while degraded; tighter specs here (e.g.
// "5 per second") avoid a thundering herd when only local visibility exists.
func WithInMemoryFallback(spec string) Option {
	return func(c *config) error {
		c.fallbackEnabled = true
		if spec == "" {
			return nil
		}
		parsed, err := limits.ParseMany(spec)
		if err != nil {
			return err
		}
		c.fallbackLimits = parsed
		return nil
	}
}

// WithRetryAfterFormat selects RetryAfterDeltaSeconds or RetryAfterHTTPDate
// for the Retry-After header.
func WithRetryAfterFormat(format string) Option {
	return func(c *config) error {
		switch format {
		case RetryAfterDeltaSeconds, RetryAfterHTTPDate:
			c.retryAfterFormat = format
			return nil
		default:
			return fmt.Errorf("unknown retry-after format %q", format)
		}
	}
}

// WithKeyPrefix namespaces every counter key, so several applications can
// share one backend.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) error {
		c.keyPrefix = prefix
		return nil
	}
}

// WithEnabled turns checking off entirely when false: every request is
// admitted with zero store traffic. Used for local and dev runs.
func WithEnabled(enabled bool) Option {
	return func(c *config) error {
		c.enabled = enabled
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithRecorder injects a metrics backend.
func WithRecorder(rec MetricsRecorder) Option {
	return func(c *config) error {
		if rec != nil {
			c.recorder = rec
		}
		return nil
	}
}
