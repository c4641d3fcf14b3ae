package limiter

import (
	"strings"

	"github.com/tobenna/request-limiter/pkg/limits"
)

// RouteLimit is the immutable registration record for one route. It is
// created by Engine.RegisterRoute and owned by the engine's route registry.
type RouteLimit struct {
	specs     []limits.Limit
	limitFunc LimitFunc

	keyFunc          KeyFunc
	perMethod        bool
	methods          map[string]struct{}
	errorMessage     string
	exemptWhen       ExemptFunc
	cost             int64
	costFunc         CostFunc
	overrideDefaults bool
}

// RouteOption customizes a route registration.
type RouteOption func(*RouteLimit) error

// WithLimit sets a static limit string for the route, parsed once at
// registration time.
func WithLimit(spec string) RouteOption {
	return func(r *RouteLimit) error {
		parsed, err := limits.ParseMany(spec)
		if err != nil {
			return err
		}
		r.specs = parsed
		return nil
	}
}

// WithLimitFunc sets a dynamic limit: the function is invoked once per check
// and its result parsed (with caching by string, since parsing is pure).
func WithLimitFunc(fn LimitFunc) RouteOption {
	return func(r *RouteLimit) error {
		r.limitFunc = fn
		return nil
	}
}

// WithRouteKeyFunc overrides the engine's partition key function for this
// route.
func WithRouteKeyFunc(fn KeyFunc) RouteOption {
	return func(r *RouteLimit) error {
		r.keyFunc = fn
		return nil
	}
}

// WithPerMethod tracks a separate counter per call method.
func WithPerMethod() RouteOption {
	return func(r *RouteLimit) error {
		r.perMethod = true
		return nil
	}
}

// WithMethods restricts the route's limits to the given call methods; other
// methods fall through to the default limits.
func WithMethods(methods ...string) RouteOption {
	return func(r *RouteLimit) error {
		r.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			r.methods[strings.ToUpper(m)] = struct{}{}
		}
		return nil
	}
}

// WithErrorMessage sets the denial message surfaced to callers.
func WithErrorMessage(msg string) RouteOption {
	return func(r *RouteLimit) error {
		r.errorMessage = msg
		return nil
	}
}

// WithExemptWhen admits matching requests unconditionally, with no counter
// traffic.
func WithExemptWhen(fn ExemptFunc) RouteOption {
	return func(r *RouteLimit) error {
		r.exemptWhen = fn
		return nil
	}
}

// WithCost sets a fixed cost weight for requests on this route.
func WithCost(cost int64) RouteOption {
	return func(r *RouteLimit) error {
		r.cost = cost
		return nil
	}
}

// WithCostFunc computes the cost weight per request.
func WithCostFunc(fn CostFunc) RouteOption {
	return func(r *RouteLimit) error {
		r.costFunc = fn
		return nil
	}
}

// WithOverrideDefaults controls whether the route's limits replace the
// engine's default limits (true, the default) or combine with them (false).
func WithOverrideDefaults(override bool) RouteOption {
	return func(r *RouteLimit) error {
		r.overrideDefaults = override
		return nil
	}
}

// appliesTo reports whether this registration's own limits cover the given
// method.
func (r *RouteLimit) appliesTo(method string) bool {
	if len(r.methods) == 0 {
		return true
	}
	_, ok := r.methods[strings.ToUpper(method)]
	return ok
}

// resolveCost returns the cost weight for one request, never negative.
func (r *RouteLimit) resolveCost(req *Request) int64 {
	cost := int64(1)
	switch {
	case r != nil && r.costFunc != nil:
		cost = r.costFunc(req)
	case r != nil && r.cost > 0:
		cost = r.cost
	}
	if cost < 0 {
		cost = 0
	}
	return cost
}
