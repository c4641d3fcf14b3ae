package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/tobenna/request-limiter/pkg/limits"
	"github.com/tobenna/request-limiter/pkg/store"
)

// The moving window's reason to exist: the burst that a fixed window admits
// across a window boundary (see TestFixedWindow_BoundaryBurst) is denied
// here, because the previous window still weighs on the estimate.
func TestMovingWindow_DeniesBoundaryBurst(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mw := NewMovingWindow()

	base := time.Unix(1_700_000_000, 0).Truncate(10 * time.Second)
	lim := limits.Limit{Amount: 10, Count: 10, Period: limits.Second}

	// Exhaust the limit just before the boundary.
	mw.now = func() time.Time { return base.Add(9500 * time.Millisecond) }
	for i := 0; i < 10; i++ {
		dec, err := mw.Check(ctx, st, "k", lim, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !dec.Allowed {
			t.Fatalf("Request %d denied with quota available", i+1)
		}
	}

	// Just after the boundary the previous window carries near-full weight:
	// the burst a fixed window would admit is denied.
	mw.now = func() time.Time { return base.Add(10500 * time.Millisecond) }
	dec, err := mw.Check(ctx, st, "k", lim, 1)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatal("Boundary burst must be denied by the moving window")
	}
	if dec.RetryAfter <= 0 {
		t.Error("Expected positive RetryAfter on denial")
	}
}

// Under steady traffic the weighted two-bucket estimate never admits more
// than Amount requests in any exact trailing window.
//
// Approximation bound: the estimate assumes arrivals in the previous window
// were uniform. For uniform (or front-loaded) previous traffic the trailing
// count never exceeds Amount. In the worst case, with the entire previous
// window's quota arriving in its final instant, the trailing count is
// bounded by 2*Amount-1 (the ceiling on the previous bucket's weight keeps
// at least one slot reserved until the previous window fully decays). This
// test drives uniform traffic and asserts the exact property.
func TestMovingWindow_TrailingWindowBoundUnderUniformTraffic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mw := NewMovingWindow()

	base := time.Unix(1_700_000_000, 0).Truncate(10 * time.Second)
	lim := limits.Limit{Amount: 10, Count: 10, Period: limits.Second}
	window := lim.Window()

	// Offer 2 requests per second for 3 windows; record admission times.
	var admitted []time.Time
	for tick := 0; tick < 60; tick++ {
		at := base.Add(time.Duration(tick) * 500 * time.Millisecond)
		mw.now = func() time.Time { return at }
		dec, err := mw.Check(ctx, st, "k", lim, 1)
		if err != nil {
			t.Fatal(err)
		}
		if dec.Allowed {
			admitted = append(admitted, at)
		}
	}

	if len(admitted) < 20 {
		t.Fatalf("Expected sustained throughput near the limit, admitted only %d", len(admitted))
	}

	// No exact trailing window may contain more than Amount admissions.
	for i := range admitted {
		count := 0
		for j := 0; j <= i; j++ {
			if admitted[i].Sub(admitted[j]) < window {
				count++
			}
		}
		if count > int(lim.Amount) {
			t.Fatalf("Trailing window ending at %v contains %d admissions, limit is %d",
				admitted[i], count, lim.Amount)
		}
	}
}

func TestMovingWindow_DenyDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mw := NewMovingWindow()

	base := time.Unix(1_700_000_000, 0).Truncate(time.Minute)
	mw.now = func() time.Time { return base.Add(time.Second) }

	lim := limits.Limit{Amount: 10, Count: 1, Period: limits.Minute}

	dec, err := mw.Check(ctx, st, "k", lim, 7)
	if err != nil || !dec.Allowed {
		t.Fatalf("Setup increment failed: %v / %+v", err, dec)
	}

	dec, err = mw.Check(ctx, st, "k", lim, 5)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatal("Cost 5 against remaining 3 should be denied")
	}
	if dec.Remaining != 3 {
		t.Errorf("Expected remaining to stay 3 after the deny, got %d", dec.Remaining)
	}

	dec, err = mw.Check(ctx, st, "k", lim, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Error("Expected the remaining 3 slots to still be consumable")
	}
}

// The previous window's influence decays as the current window advances, so
// capacity frees up gradually instead of all at once at the boundary.
func TestMovingWindow_GradualDecay(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	mw := NewMovingWindow()

	base := time.Unix(1_700_000_000, 0).Truncate(10 * time.Second)
	lim := limits.Limit{Amount: 10, Count: 10, Period: limits.Second}

	mw.now = func() time.Time { return base.Add(9 * time.Second) }
	for i := 0; i < 10; i++ {
		if dec, _ := mw.Check(ctx, st, "k", lim, 1); !dec.Allowed {
			t.Fatalf("Fill request %d denied", i+1)
		}
	}

	// Half way into the next window half the previous weight is gone:
	// ceil(10*0.5)=5 weighted, so 5 slots are open again.
	mw.now = func() time.Time { return base.Add(15 * time.Second) }
	granted := 0
	for i := 0; i < 7; i++ {
		dec, err := mw.Check(ctx, st, "k", lim, 1)
		if err != nil {
			t.Fatal(err)
		}
		if dec.Allowed {
			granted++
		}
	}
	if granted != 5 {
		t.Errorf("Expected exactly 5 admissions at half decay, got %d", granted)
	}
}
