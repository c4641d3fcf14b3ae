package limiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

// Engine is the request-admission core. It resolves the limits applicable to
// a request, composes the counter key, runs each limit through the configured
// window strategy and aggregates the outcome. Engines are safe for concurrent
// use; each check is a short independent operation.
type Engine struct {
	keyFunc  KeyFunc
	cfg      config
	strategy Strategy

	primary  store.Store
	local    *store.MemoryStore
	fallback *FallbackCoordinator
	ownStore bool

	mu     sync.RWMutex
	routes map[string]*RouteLimit

	cache   *parseCache
	headers *HeaderWriter
}

// boundLimit pairs a limit spec with the effective key it is tracked under.
type boundLimit struct {
	lim limits.Limit
	key string
}

// New builds an engine. The key function is required; it derives the
// partition key (client IP, API key, ...) each quota is tracked against.
// Configuration errors, including malformed limit strings, are fatal here.
func New(keyFunc KeyFunc, opts ...Option) (*Engine, error) {
	if keyFunc == nil {
		return nil, errors.New("key func is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	strategy, err := NewStrategy(cfg.strategyName)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		keyFunc:  keyFunc,
		cfg:      cfg,
		strategy: strategy,
		local:    store.NewMemoryStore(),
		routes:   make(map[string]*RouteLimit),
		cache:    newParseCache(parseCacheSize),
		headers:  &HeaderWriter{Enabled: cfg.headersEnabled, Format: cfg.retryAfterFormat},
	}

	switch {
	case cfg.store != nil:
		e.primary = cfg.store
	case cfg.storageURI != "":
		var ropts []store.RedisOption
		if cfg.storeTimeout > 0 {
			ropts = append(ropts, store.WithOpTimeout(cfg.storeTimeout))
		}
		rs, err := store.NewRedisStoreFromURI(cfg.storageURI, ropts...)
		if err != nil {
			return nil, err
		}
		e.primary = rs
		e.ownStore = true
	default:
		// In-memory only deployment; the local store is the primary and
		// there is nothing to fall back to.
		e.primary = e.local
	}

	if cfg.fallbackEnabled && (cfg.store != nil || cfg.storageURI != "") {
		e.fallback = NewFallbackCoordinator(e.primary, e.local, cfg.logger, cfg.recorder)
	}

	return e, nil
}

// RegisterRoute records the limits and behavior for one route. Routes are
// registered once, at startup; registrations are immutable afterwards.
func (e *Engine) RegisterRoute(route string, opts ...RouteOption) error {
	if route == "" {
		return errors.New("route identity is required")
	}
	reg := &RouteLimit{overrideDefaults: true}
	for _, opt := range opts {
		if err := opt(reg); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.routes[route]; dup {
		return fmt.Errorf("route %q already registered", route)
	}
	e.routes[route] = reg
	return nil
}

// Check decides whether one request may proceed. A deny is a normal outcome:
// the Result reports it with retry timing and a nil error. Errors are
// reserved for infrastructure and configuration failures, and only reach the
// caller when fail-open is off and no fallback applies.
func (e *Engine) Check(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		req = &Request{}
	}
	if !e.cfg.enabled {
		return &Result{Allowed: true}, nil
	}

	start := time.Now()
	res, err := e.check(ctx, req)
	e.cfg.recorder.Observe("ratelimit.latency", time.Since(start).Seconds(), nil)
	e.cfg.recorder.Add("ratelimit.check", 1, map[string]string{"result": resultTag(res, err)})
	return res, err
}

func resultTag(res *Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Exempt:
		return "exempt"
	case res.FailedOpen:
		return "failed_open"
	case res.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

func (e *Engine) check(ctx context.Context, req *Request) (*Result, error) {
	reg := e.route(req.Route)

	if reg != nil && reg.exemptWhen != nil && reg.exemptWhen(req) {
		return &Result{Allowed: true, Exempt: true}, nil
	}

	partition, err := e.partitionKey(reg, req)
	if err != nil {
		return e.failPolicy(&KeyFuncError{Err: err})
	}

	bounds, routeKey, err := e.boundLimits(reg, req, partition)
	if err != nil {
		// A malformed dynamic limit string is a configuration mistake and is
		// never swallowed.
		return nil, err
	}
	if len(bounds) == 0 {
		return &Result{Allowed: true}, nil
	}

	cost := reg.resolveCost(req)

	if e.fallback != nil && e.fallback.Active() {
		e.fallback.MaybeProbe(ctx)
		if e.fallback.Active() {
			return e.evaluate(ctx, e.local, e.degradedBounds(bounds, routeKey), reg, cost)
		}
	}

	res, err := e.evaluate(ctx, e.primary, bounds, reg, cost)
	if err != nil {
		if e.fallback != nil && errors.Is(err, store.ErrStoreUnavailable) {
			e.fallback.OnFailure()
			return e.evaluate(ctx, e.local, e.degradedBounds(bounds, routeKey), reg, cost)
		}
		return e.failPolicy(err)
	}
	if e.fallback != nil {
		e.fallback.OnSuccess()
	}
	return res, nil
}

// evaluate runs every bound limit through the strategy and aggregates the
// most restrictive figures. It short-circuits on the first denial; specs
// checked before the denial keep their increments, the denying spec itself
// consumes nothing.
func (e *Engine) evaluate(ctx context.Context, st store.Store, bounds []boundLimit, reg *RouteLimit, cost int64) (*Result, error) {
	res := &Result{Allowed: true, Remaining: -1}
	for _, b := range bounds {
		dec, err := e.strategy.Check(ctx, st, b.key, b.lim, cost)
		if err != nil {
			if st == store.Store(e.local) {
				// The local store has no failure mode worth a fallback; honor
				// the swallow policy directly.
				return e.failPolicy(err)
			}
			return nil, err
		}
		if !dec.Allowed {
			res.Allowed = false
			res.Limit = dec.Limit
			res.Remaining = dec.Remaining
			res.ResetAfter = dec.ResetAfter
			res.RetryAfter = dec.RetryAfter
			if reg != nil {
				res.ErrorMessage = reg.errorMessage
			}
			e.cfg.logger.Debug("request denied",
				zap.String("key", b.key),
				zap.Stringer("limit", dec.Limit),
				zap.Duration("retry_after", dec.RetryAfter))
			return res, nil
		}
		if res.Remaining < 0 || dec.Remaining < res.Remaining {
			res.Limit = dec.Limit
			res.Remaining = dec.Remaining
			res.ResetAfter = dec.ResetAfter
		}
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

// boundLimits resolves which limit specs apply to the request and the
// effective keys they are tracked under:
//
//	key_prefix + partition + ":" + route [+ ":" + method]
//
// Route limits replace the defaults unless the registration keeps them;
// application limits always apply, tracked per partition across all routes.
func (e *Engine) boundLimits(reg *RouteLimit, req *Request, partition string) ([]boundLimit, string, error) {
	routeKey := e.cfg.keyPrefix + partition + ":" + req.Route
	if reg != nil && reg.perMethod {
		routeKey += ":" + strings.ToUpper(req.Method)
	}

	var routeSpecs []limits.Limit
	if reg != nil && reg.appliesTo(req.Method) {
		routeSpecs = reg.specs
		if reg.limitFunc != nil {
			if s := reg.limitFunc(req); s != "" {
				parsed, err := e.cache.parse(s)
				if err != nil {
					return nil, "", err
				}
				routeSpecs = append(append([]limits.Limit(nil), routeSpecs...), parsed...)
			}
		}
	}

	bounds := make([]boundLimit, 0, len(routeSpecs)+len(e.cfg.defaultLimits)+len(e.cfg.applicationLimits))
	for _, lim := range routeSpecs {
		bounds = append(bounds, boundLimit{lim: lim, key: routeKey})
	}
	if len(routeSpecs) == 0 || (reg != nil && !reg.overrideDefaults) {
		for _, lim := range e.cfg.defaultLimits {
			bounds = append(bounds, boundLimit{lim: lim, key: routeKey})
		}
	}
	for _, lim := range e.cfg.applicationLimits {
		bounds = append(bounds, boundLimit{lim: lim, key: e.cfg.keyPrefix + partition + ":app"})
	}
	return bounds, routeKey, nil
}

// degradedBounds substitutes the configured fallback limits while the
// primary store is unreachable. With none configured, the normal limits
// apply against the local store.
func (e *Engine) degradedBounds(bounds []boundLimit, routeKey string) []boundLimit {
	if len(e.cfg.fallbackLimits) == 0 {
		return bounds
	}
	out := make([]boundLimit, 0, len(e.cfg.fallbackLimits))
	for _, lim := range e.cfg.fallbackLimits {
		out = append(out, boundLimit{lim: lim, key: routeKey})
	}
	return out
}

func (e *Engine) partitionKey(reg *RouteLimit, req *Request) (string, error) {
	kf := e.keyFunc
	if reg != nil && reg.keyFunc != nil {
		kf = reg.keyFunc
	}
	key, err := kf(req)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("empty partition key")
	}
	return key, nil
}

// failPolicy applies the fail-open/fail-closed flag to an internal error.
func (e *Engine) failPolicy(err error) (*Result, error) {
	if e.cfg.swallowErrors {
		e.cfg.logger.Warn("admission check failed open", zap.Error(err))
		return &Result{Allowed: true, FailedOpen: true}, nil
	}
	return nil, err
}

func (e *Engine) route(name string) *RouteLimit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routes[name]
}

// Reset clears the live counters behind a request's applicable limits.
// Administrative use only; normal request handling never deletes counters.
func (e *Engine) Reset(ctx context.Context, req *Request) error {
	if req == nil {
		req = &Request{}
	}
	reg := e.route(req.Route)
	partition, err := e.partitionKey(reg, req)
	if err != nil {
		return &KeyFuncError{Err: err}
	}
	bounds, _, err := e.boundLimits(reg, req, partition)
	if err != nil {
		return err
	}

	st := e.primary
	if e.fallback != nil && e.fallback.Active() {
		st = e.local
	}
	now := time.Now()
	for _, b := range bounds {
		window := b.lim.Window()
		start := now.Truncate(window)
		// Current and previous buckets both feed the moving-window estimate.
		for _, s := range []time.Time{start, start.Add(-window)} {
			if err := st.Reset(ctx, bucketKey(b.key, window, s)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Headers returns the engine's decision reporter.
func (e *Engine) Headers() *HeaderWriter { return e.headers }

// Enabled reports whether checking is active at all.
func (e *Engine) Enabled() bool { return e.cfg.enabled }

// AutoCheck reports whether integrations should run the engine on every call
// automatically, or wait for an explicit manual check.
func (e *Engine) AutoCheck() bool { return e.cfg.autoCheck }

// FallbackState snapshots the degradation state for metrics and debugging.
func (e *Engine) FallbackState() FallbackState {
	if e.fallback == nil {
		return FallbackState{}
	}
	return e.fallback.State()
}

// Close releases the backend connection when the engine owns it (stores
// injected via WithStore stay with their caller).
func (e *Engine) Close() error {
	if !e.ownStore {
		return nil
	}
	if closer, ok := e.primary.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
