package limiter

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tobenna/request-limiter/pkg/store"
)

const (
	initialProbeInterval = time.Second
	maxProbeInterval     = 32 * time.Second
)

// FallbackState is a snapshot of the coordinator's shared state.
type FallbackState struct {
	Active        bool
	Since         time.Time
	FailureStreak int64
}

// FallbackCoordinator tracks primary store health and switches counting to a
// local in-memory store while the primary is unreachable. All state lives in
// atomics: many concurrent checks observe and update it simultaneously.
//
// Transitions are observable through logs and metrics but never surface as
// errors by themselves.
type FallbackCoordinator struct {
	primary store.Store
	local   *store.MemoryStore

	active        atomic.Bool
	since         atomic.Int64
	failureStreak atomic.Int64

	// Probes against the primary are spaced with exponential backoff so a
	// hard-down store is not pinged on every request.
	nextProbe     atomic.Int64
	probeInterval atomic.Int64

	logger   *zap.Logger
	recorder MetricsRecorder
	now      func() time.Time
}

// NewFallbackCoordinator wires a coordinator between a primary store and its
// local stand-in.
func NewFallbackCoordinator(primary store.Store, local *store.MemoryStore, logger *zap.Logger, recorder MetricsRecorder) *FallbackCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = &NoOpMetricsRecorder{}
	}
	fc := &FallbackCoordinator{
		primary:  primary,
		local:    local,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
	fc.probeInterval.Store(int64(initialProbeInterval))
	return fc
}

// Active reports whether counting is currently routed to the local store.
func (fc *FallbackCoordinator) Active() bool { return fc.active.Load() }

// State returns a snapshot for metrics and introspection.
func (fc *FallbackCoordinator) State() FallbackState {
	return FallbackState{
		Active:        fc.active.Load(),
		Since:         time.Unix(0, fc.since.Load()),
		FailureStreak: fc.failureStreak.Load(),
	}
}

// OnFailure records a failed primary operation and activates fallback if it
// is not active yet. Local counters start fresh for each fallback period.
func (fc *FallbackCoordinator) OnFailure() {
	fc.failureStreak.Add(1)
	if fc.active.CompareAndSwap(false, true) {
		now := fc.now()
		fc.since.Store(now.UnixNano())
		fc.probeInterval.Store(int64(initialProbeInterval))
		fc.nextProbe.Store(now.Add(initialProbeInterval).UnixNano())
		fc.local.Clear()
		fc.logger.Warn("primary store unavailable, switching to in-memory fallback",
			zap.Int64("failure_streak", fc.failureStreak.Load()))
		fc.recorder.Add("ratelimit.fallback.activated", 1, nil)
	}
}

// OnSuccess records a successful primary operation.
func (fc *FallbackCoordinator) OnSuccess() {
	fc.failureStreak.Store(0)
}

// MaybeProbe pings the primary when a probe is due and deactivates fallback
// on recovery. Fallback-period counts are discarded; checks resume against
// whatever the primary store holds.
func (fc *FallbackCoordinator) MaybeProbe(ctx context.Context) {
	if !fc.active.Load() {
		return
	}
	now := fc.now()
	due := fc.nextProbe.Load()
	if now.UnixNano() < due {
		return
	}
	// Only one of the racing checks wins the probe slot.
	interval := time.Duration(fc.probeInterval.Load())
	if !fc.nextProbe.CompareAndSwap(due, now.Add(interval).UnixNano()) {
		return
	}

	if err := fc.primary.Ping(ctx); err != nil {
		next := interval * 2
		if next > maxProbeInterval {
			next = maxProbeInterval
		}
		fc.probeInterval.Store(int64(next))
		fc.logger.Debug("primary store still unavailable", zap.Error(err))
		return
	}

	if fc.active.CompareAndSwap(true, false) {
		fc.failureStreak.Store(0)
		fc.local.Clear()
		fc.logger.Info("primary store recovered, leaving fallback",
			zap.Duration("degraded_for", now.Sub(time.Unix(0, fc.since.Load()))))
		fc.recorder.Add("ratelimit.fallback.recovered", 1, nil)
	}
}
