package locks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/ebalan/recordlock/metrics"
)

func TestActiveLeaseGaugeTracksCardinality(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	// Renewals are re-entrant claims of the same lease; three of them are
	// still one live lease.
	for i := 0; i < 3; i++ {
		if ok, _, err := store.TryClaim(ctx, "interview|donor_id=1", 1, time.Minute); err != nil || !ok {
			t.Fatalf("claim %d: ok=%v err=%v", i, ok, err)
		}
	}
	// Releasing a key nobody holds changes nothing.
	if err := store.Release(ctx, "physical_exam|donor_id=9", 1); err != nil {
		t.Fatalf("noop release: %v", err)
	}

	sweepOnce(store, zap.NewNop())
	if got := testutil.ToFloat64(metrics.ActiveLeases); got != 1 {
		t.Errorf("gauge after re-entrant claims and a noop release = %v, want 1", got)
	}

	if ok, _, err := store.TryClaim(ctx, "blood_collection|donor_id=2", 2, time.Minute); err != nil || !ok {
		t.Fatalf("second claim: ok=%v err=%v", ok, err)
	}
	sweepOnce(store, zap.NewNop())
	if got := testutil.ToFloat64(metrics.ActiveLeases); got != 2 {
		t.Errorf("gauge after a second lease = %v, want 2", got)
	}

	if err := store.Release(ctx, "interview|donor_id=1", 1); err != nil {
		t.Fatalf("release: %v", err)
	}
	sweepOnce(store, zap.NewNop())
	if got := testutil.ToFloat64(metrics.ActiveLeases); got != 1 {
		t.Errorf("gauge after release = %v, want 1", got)
	}
}

func TestActiveLeaseGaugeExcludesExpired(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	if _, _, err := store.TryClaim(ctx, "interview|donor_id=5", 1, 10*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, _, err := store.TryClaim(ctx, "interview|donor_id=6", 1, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Minute) }

	sweepOnce(store, zap.NewNop())
	if got := testutil.ToFloat64(metrics.ActiveLeases); got != 1 {
		t.Errorf("gauge after expiry sweep = %v, want 1", got)
	}
}

func TestMemoryCount(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	if _, _, err := store.TryClaim(ctx, "a|id=1", 1, 10*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, _, err := store.TryClaim(ctx, "b|id=2", 2, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("count = %d, %v, want 2", count, err)
	}

	// Expired leases do not count even before a sweep removes them.
	store.now = func() time.Time { return base.Add(time.Minute) }
	count, err = store.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("count after expiry = %d, %v, want 1", count, err)
	}
}
