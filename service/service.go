// Package service implements the lock coordination façade: it translates
// claim/release/status requests into lease-store calls and aggregates
// multi-scope requests into one combined response.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/internal/lockkey"
	"github.com/ebalan/recordlock/locks"
	"github.com/ebalan/recordlock/metrics"
)

// Actions accepted by the lock endpoint.
const (
	ActionClaim   = "claim"
	ActionRelease = "release"
	ActionStatus  = "status"
)

// ErrUnknownAction is returned for actions outside claim/release/status.
var ErrUnknownAction = errors.New("unknown lock action")

// ErrLockHeld is returned by CheckOwnership when another holder value owns
// the record's lease.
var ErrLockHeld = errors.New("record is locked by another session")

// Request is the wire format of one lock operation. Access carries the
// caller's holder value and is required for claim; record entries carry the
// identifying filter fields for each scope.
type Request struct {
	Action  string   `json:"action"`
	Scopes  []string `json:"scopes"`
	Access  int      `json:"access,omitempty"`
	Records []Record `json:"records,omitempty"`
}

// Response is the combined result of one lock operation. States maps each
// requested scope onto its current holder value, 0 meaning unlocked.
type Response struct {
	Success bool           `json:"success"`
	States  map[string]int `json:"states"`
}

// Record identifies one lockable record within a scope. On the wire the
// filter fields sit inline next to "scope", so Record carries custom JSON
// codecs.
type Record struct {
	Scope   string
	Filters map[string]any
}

// MarshalJSON flattens the filters next to the scope field.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Filters)+1)
	for k, v := range r.Filters {
		m[k] = v
	}
	m["scope"] = r.Scope
	return json.Marshal(m)
}

// UnmarshalJSON splits the scope field from the inline filter fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if s, ok := m["scope"].(string); ok {
		r.Scope = s
	}
	delete(m, "scope")
	r.Filters = m
	return nil
}

// Service is the stateless request handler in front of the lease store.
type Service struct {
	store  locks.Store
	ttl    time.Duration
	hub    *Hub
	logger *zap.Logger
}

// NewService creates a lock service. The hub is optional; when present,
// claim and release results are published to watch subscribers.
func NewService(store locks.Store, ttl time.Duration, hub *Hub, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		ttl:    ttl,
		hub:    hub,
		logger: logger,
	}
}

// TTL returns the lease duration granted on claim.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Handle dispatches one decoded request. Malformed requests (no scopes, no
// matching records) degrade to a no-op allow with empty states; they are
// never surfaced as errors.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case ActionClaim:
		return s.Claim(ctx, req.Scopes, req.Access, req.Records)
	case ActionRelease:
		return s.Release(ctx, req.Scopes, req.Access, req.Records)
	case ActionStatus:
		return s.Status(ctx, req.Scopes, req.Records)
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

// Claim attempts to claim every requested scope independently. Claims
// across scopes are not atomic: a partial failure leaves earlier leases
// held until the caller releases them or they expire, and is surfaced as
// an overall failure.
func (s *Service) Claim(ctx context.Context, scopes []string, access int, records []Record) (Response, error) {
	resp := Response{Success: true, States: map[string]int{}}

	if access <= 0 {
		// Missing holder value short-circuits to a no-op allow.
		s.logger.Warn("Claim without a holder value degraded to no-op",
			zap.Strings("scopes", scopes))
		return resp, nil
	}

	for scope, key := range s.keysForScopes(scopes, records) {
		start := time.Now()
		ok, current, err := s.store.TryClaim(ctx, key, access, s.ttl)
		metrics.LockOperationDuration.WithLabelValues("claim").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.LockOperationsTotal.WithLabelValues("claim", "error").Inc()
			return Response{}, fmt.Errorf("claim %s: %w", scope, err)
		}

		if ok {
			metrics.LockOperationsTotal.WithLabelValues("claim", "success").Inc()
			resp.States[scope] = access
			s.publish(scope, key, access)
		} else {
			metrics.LockOperationsTotal.WithLabelValues("claim", "conflict").Inc()
			metrics.LockConflictsTotal.WithLabelValues(scope).Inc()
			resp.Success = false
			resp.States[scope] = current
			s.logger.Debug("Claim conflict",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Int("requested", access),
				zap.Int("current", current))
		}
	}
	return resp, nil
}

// Release releases every requested scope for the given holder value.
// Releasing free or differently-held leases is a no-op.
func (s *Service) Release(ctx context.Context, scopes []string, access int, records []Record) (Response, error) {
	resp := Response{Success: true, States: map[string]int{}}

	if access <= 0 {
		s.logger.Warn("Release without a holder value degraded to no-op",
			zap.Strings("scopes", scopes))
		return resp, nil
	}

	for scope, key := range s.keysForScopes(scopes, records) {
		start := time.Now()
		err := s.store.Release(ctx, key, access)
		metrics.LockOperationDuration.WithLabelValues("release").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.LockOperationsTotal.WithLabelValues("release", "error").Inc()
			return Response{}, fmt.Errorf("release %s: %w", scope, err)
		}
		metrics.LockOperationsTotal.WithLabelValues("release", "success").Inc()
		resp.States[scope] = 0
		s.publish(scope, key, 0)
	}
	return resp, nil
}

// Status reports the current holder value per requested scope.
func (s *Service) Status(ctx context.Context, scopes []string, records []Record) (Response, error) {
	resp := Response{Success: true, States: map[string]int{}}

	scopeKeys := s.keysForScopes(scopes, records)
	if len(scopeKeys) == 0 {
		return resp, nil
	}

	keys := make([]string, 0, len(scopeKeys))
	keyScope := make(map[string]string, len(scopeKeys))
	for scope, key := range scopeKeys {
		keys = append(keys, key)
		keyScope[key] = scope
	}

	start := time.Now()
	states, err := s.store.Status(ctx, keys)
	metrics.LockOperationDuration.WithLabelValues("status").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LockOperationsTotal.WithLabelValues("status", "error").Inc()
		return Response{}, fmt.Errorf("status: %w", err)
	}
	metrics.LockOperationsTotal.WithLabelValues("status", "success").Inc()

	for key, holder := range states {
		resp.States[keyScope[key]] = holder
	}
	return resp, nil
}

// CheckOwnership is the write-path revalidation hook: endpoints that mutate
// a locked record call it before committing, independent of the client
// guard's advisory state. It returns ErrLockHeld when another holder value
// owns the record's lease.
func (s *Service) CheckOwnership(ctx context.Context, scope string, filters map[string]any, holder int) error {
	key, err := lockkey.Build(scope, filters)
	if err != nil {
		// No identifiable record means nothing to validate against.
		return nil
	}

	states, err := s.store.Status(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("ownership check: %w", err)
	}

	if current := states[key]; current != 0 && current != holder {
		return fmt.Errorf("%w: scope %s held by %d", ErrLockHeld, scope, current)
	}
	return nil
}

// keysForScopes pairs each scope with the lock key built from its matching
// record. Scopes without a usable record are skipped, degrading that part
// of the request to a no-op.
func (s *Service) keysForScopes(scopes []string, records []Record) map[string]string {
	keys := make(map[string]string, len(scopes))
	for _, scope := range scopes {
		rec, ok := recordForScope(scope, records)
		if !ok {
			continue
		}
		key, err := lockkey.Build(scope, rec.Filters)
		if err != nil {
			s.logger.Debug("Skipping scope without identifiable record",
				zap.String("scope", scope),
				zap.Error(err))
			continue
		}
		keys[scope] = key
	}
	return keys
}

func recordForScope(scope string, records []Record) (Record, bool) {
	for _, rec := range records {
		if rec.Scope == scope {
			return rec, true
		}
	}
	// A single unscoped record applies to every requested scope.
	if len(records) == 1 && records[0].Scope == "" {
		return records[0], true
	}
	return Record{}, false
}

func (s *Service) publish(scope, key string, holder int) {
	if s.hub != nil {
		s.hub.Publish(Update{Scope: scope, Key: key, Holder: holder})
	}
}
