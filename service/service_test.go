package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/locks"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := locks.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store, time.Minute, nil, zap.NewNop())
}

func TestClaimAndStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	records := []Record{{Scope: "blood_collection", Filters: map[string]any{"donor_id": float64(42)}}}

	resp, err := svc.Claim(ctx, []string{"blood_collection"}, 1, records)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !resp.Success || resp.States["blood_collection"] != 1 {
		t.Fatalf("expected successful claim with state 1, got %+v", resp)
	}

	// Another holder sees the lease through status.
	resp, err = svc.Status(ctx, []string{"blood_collection"}, records)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Success || resp.States["blood_collection"] != 1 {
		t.Fatalf("expected status to report holder 1, got %+v", resp)
	}

	// Conflicting claim fails overall and reports the current holder.
	resp, err = svc.Claim(ctx, []string{"blood_collection"}, 2, records)
	if err != nil {
		t.Fatalf("conflicting claim: %v", err)
	}
	if resp.Success || resp.States["blood_collection"] != 1 {
		t.Fatalf("expected conflict reporting holder 1, got %+v", resp)
	}

	// Release frees the key for the next status poll.
	if _, err := svc.Release(ctx, []string{"blood_collection"}, 1, records); err != nil {
		t.Fatalf("release: %v", err)
	}
	resp, err = svc.Status(ctx, []string{"blood_collection"}, records)
	if err != nil {
		t.Fatalf("status after release: %v", err)
	}
	if resp.States["blood_collection"] != 0 {
		t.Fatalf("expected free state after release, got %+v", resp)
	}
}

func TestClaimPartialFailureLeavesEarlierLeases(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	examRecords := []Record{{Scope: "physical_exam", Filters: map[string]any{"donor_id": float64(7)}}}
	if resp, err := svc.Claim(ctx, []string{"physical_exam"}, 2, examRecords); err != nil || !resp.Success {
		t.Fatalf("setup claim failed: %+v err=%v", resp, err)
	}

	records := []Record{
		{Scope: "interview", Filters: map[string]any{"donor_id": float64(7)}},
		{Scope: "physical_exam", Filters: map[string]any{"donor_id": float64(7)}},
	}
	resp, err := svc.Claim(ctx, []string{"interview", "physical_exam"}, 1, records)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if resp.Success {
		t.Fatal("expected overall failure on partial conflict")
	}
	if resp.States["interview"] != 1 {
		t.Errorf("expected interview claimed by 1, got %d", resp.States["interview"])
	}
	if resp.States["physical_exam"] != 2 {
		t.Errorf("expected physical_exam conflict reporting 2, got %d", resp.States["physical_exam"])
	}

	// The successfully claimed scope stays held until explicitly released.
	status, _ := svc.Status(ctx, []string{"interview"}, records)
	if status.States["interview"] != 1 {
		t.Error("partial-claim lease must remain held until released")
	}
}

func TestMalformedRequestDegradesToNoop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "no scopes",
			req:  Request{Action: ActionClaim, Access: 1},
		},
		{
			name: "no records",
			req:  Request{Action: ActionClaim, Scopes: []string{"interview"}, Access: 1},
		},
		{
			name: "record without filters",
			req: Request{
				Action: ActionClaim,
				Scopes: []string{"interview"},
				Access: 1,
				Records: []Record{
					{Scope: "interview"},
				},
			},
		},
		{
			name: "claim without access",
			req: Request{
				Action: ActionClaim,
				Scopes: []string{"interview"},
				Records: []Record{
					{Scope: "interview", Filters: map[string]any{"donor_id": float64(1)}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Handle(ctx, tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !resp.Success || len(resp.States) != 0 {
				t.Errorf("expected no-op allow, got %+v", resp)
			}
		})
	}
}

func TestHandleUnknownAction(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Handle(context.Background(), Request{Action: "renew"})
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestUnscopedRecordAppliesToAllScopes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	records := []Record{{Filters: map[string]any{"donor_id": float64(9)}}}
	resp, err := svc.Claim(ctx, []string{"interview", "physical_exam"}, 1, records)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !resp.Success || len(resp.States) != 2 {
		t.Fatalf("expected both scopes claimed from shared record, got %+v", resp)
	}
}

func TestCheckOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	filters := map[string]any{"donor_id": float64(3)}
	records := []Record{{Scope: "blood_collection", Filters: filters}}
	if _, err := svc.Claim(ctx, []string{"blood_collection"}, 2, records); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// The holder passes; another value is rejected.
	if err := svc.CheckOwnership(ctx, "blood_collection", filters, 2); err != nil {
		t.Errorf("holder ownership check failed: %v", err)
	}
	if err := svc.CheckOwnership(ctx, "blood_collection", filters, 1); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}

	// A free record passes for anyone.
	if err := svc.CheckOwnership(ctx, "physical_exam", filters, 1); err != nil {
		t.Errorf("free record ownership check failed: %v", err)
	}
}

func TestRecordJSONRoundTrip(t *testing.T) {
	raw := []byte(`{"scope":"blood_collection","donor_id":42,"blood_collection_id":9}`)

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Scope != "blood_collection" {
		t.Errorf("expected scope blood_collection, got %q", rec.Scope)
	}
	if rec.Filters["donor_id"] != float64(42) || rec.Filters["blood_collection_id"] != float64(9) {
		t.Errorf("unexpected filters: %+v", rec.Filters)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again Record
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if again.Scope != rec.Scope || len(again.Filters) != len(rec.Filters) {
		t.Errorf("round trip mismatch: %+v vs %+v", again, rec)
	}
}

func TestHubPublish(t *testing.T) {
	hub := NewHub()
	store := locks.NewMemoryStore()
	defer store.Close()
	svc := NewService(store, time.Minute, hub, zap.NewNop())

	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	records := []Record{{Scope: "interview", Filters: map[string]any{"donor_id": float64(1)}}}
	if _, err := svc.Claim(context.Background(), []string{"interview"}, 1, records); err != nil {
		t.Fatalf("claim: %v", err)
	}

	select {
	case update := <-ch:
		if update.Scope != "interview" || update.Holder != 1 {
			t.Errorf("unexpected update: %+v", update)
		}
	default:
		t.Fatal("expected a buffered hub update after claim")
	}
}
