package locks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "leases.sqlite3"), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteTryClaimAndConflict(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	ok, current, err := store.TryClaim(ctx, "blood_collection|donor_id=42", 1, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !ok || current != 1 {
		t.Fatalf("expected claim success, got ok=%v current=%d", ok, current)
	}

	ok, current, err = store.TryClaim(ctx, "blood_collection|donor_id=42", 2, time.Minute)
	if err != nil {
		t.Fatalf("conflicting claim: %v", err)
	}
	if ok || current != 1 {
		t.Errorf("expected conflict reporting holder 1, got ok=%v current=%d", ok, current)
	}

	ok, _, err = store.TryClaim(ctx, "blood_collection|donor_id=42", 1, time.Minute)
	if err != nil || !ok {
		t.Errorf("expected re-entrant claim to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestSQLiteReleaseIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if _, _, err := store.TryClaim(ctx, "interview|donor_id=1", 1, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.Release(ctx, "interview|donor_id=1", 2); err != nil {
		t.Fatalf("mismatched release: %v", err)
	}
	states, _ := store.Status(ctx, []string{"interview|donor_id=1"})
	if states["interview|donor_id=1"] != 1 {
		t.Fatal("mismatched release must not drop the lease")
	}

	if err := store.Release(ctx, "interview|donor_id=1", 1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Release(ctx, "interview|donor_id=1", 1); err != nil {
		t.Fatalf("repeated release: %v", err)
	}
	states, _ = store.Status(ctx, []string{"interview|donor_id=1"})
	if states["interview|donor_id=1"] != 0 {
		t.Fatal("expected key free after release")
	}
}

func TestSQLiteLeaseExpiryAndSweep(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	if _, _, err := store.TryClaim(ctx, "interview|donor_id=5", 1, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, _, err := store.TryClaim(ctx, "interview|donor_id=6", 1, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	store.now = func() time.Time { return base.Add(31 * time.Second) }

	states, err := store.Status(ctx, []string{"interview|donor_id=5", "interview|donor_id=6"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if states["interview|donor_id=5"] != 0 {
		t.Errorf("expected expired lease to read as free, got %d", states["interview|donor_id=5"])
	}
	if states["interview|donor_id=6"] != 1 {
		t.Errorf("expected live lease to report holder 1, got %d", states["interview|donor_id=6"])
	}

	// A different holder claims over the expired lease.
	ok, _, err := store.TryClaim(ctx, "interview|donor_id=5", 2, time.Minute)
	if err != nil || !ok {
		t.Errorf("expected claim over expired lease to succeed, got ok=%v err=%v", ok, err)
	}

	if err := store.Release(ctx, "interview|donor_id=5", 2); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Leave one expired row behind and sweep it.
	store.now = func() time.Time { return base }
	if _, _, err := store.TryClaim(ctx, "interview|donor_id=7", 1, 10*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Minute) }

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 expired lease removed, got %d", removed)
	}
}

func TestSQLiteCount(t *testing.T) {
	store := newSQLiteStore(t)
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

	store.now = func() time.Time { return base.Add(time.Minute) }
	count, err = store.Count(ctx)
	if err != nil || count != 1 {
		t.Errorf("count after expiry = %d, %v, want 1", count, err)
	}
}
