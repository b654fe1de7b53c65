package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebalan/recordlock/service"
)

// State is the agent's lifecycle position.
type State int

const (
	// StateIdle: created or claim failed; polling may still be running.
	StateIdle State = iota
	// StateClaiming: activation issued, claim response pending.
	StateClaiming
	// StateHeld: the session owns leases on its scopes.
	StateHeld
	// StateLost: a held lease was claimed over after expiring.
	StateLost
	// StateReleased: terminal; the session released (or beaconed) its leases.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateHeld:
		return "held"
	case StateLost:
		return "lost"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Agent coordinates one editing session's lease over one or more scopes.
// All lock operations for the session are serialized through the agent;
// responses arriving after deactivation are discarded by generation check.
type Agent struct {
	opts      Options
	transport *transport
	guard     *Guard
	logger    *zap.Logger
	sessionID string

	pollInterval  time.Duration
	renewInterval time.Duration

	mu         sync.Mutex
	state      State
	gen        uint64
	released   bool
	cancelPoll context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an agent for one actor session. The agent stays Idle until
// Activate.
func New(opts Options) (*Agent, error) {
	if err := opts.normalize(); err != nil {
		return nil, fmt.Errorf("invalid agent options: %w", err)
	}

	sessionID := uuid.NewString()
	logger := opts.Logger.With(zap.String("session_id", sessionID))

	return &Agent{
		opts: opts,
		transport: &transport{
			endpoint: opts.Endpoint,
			token:    opts.Token,
			client:   opts.HTTPClient,
			logger:   logger,
		},
		guard:         newGuard(opts),
		logger:        logger,
		sessionID:     sessionID,
		pollInterval:  opts.PollInterval,
		renewInterval: opts.RenewInterval,
	}, nil
}

// Guard returns the session's guard.
func (a *Agent) Guard() *Guard {
	return a.guard
}

// SessionID returns the agent's session identifier.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Activate claims the session's scopes and starts the poll loop. A claim
// failure is logged, not surfaced: it leaves the agent Idle but polling,
// because only status evaluation disables the UI.
func (a *Agent) Activate(ctx context.Context) error {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return fmt.Errorf("agent already released")
	}
	if a.state != StateIdle {
		a.mu.Unlock()
		return fmt.Errorf("agent already active in state %s", a.state)
	}
	a.state = StateClaiming
	gen := a.gen

	pollCtx, cancel := context.WithCancel(context.Background())
	a.cancelPoll = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	resp, err := a.transport.do(ctx, a.claimRequest())
	a.applyClaimResult(gen, resp, err)
	return nil
}

// Deactivate releases the session's leases and stops polling. Idempotent.
func (a *Agent) Deactivate(ctx context.Context) error {
	if !a.retire() {
		return nil
	}
	a.wg.Wait()

	if _, err := a.transport.do(ctx, a.releaseRequest()); err != nil {
		// Swallowed: the lease expires server-side regardless.
		a.logger.Warn("Release failed, relying on lease expiry", zap.Error(err))
	}
	return nil
}

// Beacon fires the page-teardown release: non-blocking, unawaited, sent at
// most once per session. Deactivate and Beacon share the released flag, so
// whichever runs first wins and the other is a no-op.
func (a *Agent) Beacon() {
	if !a.retire() {
		return
	}
	a.transport.beacon(a.releaseRequest())
}

// retire flips the session into the terminal Released state. Returns false
// when a release was already sent.
func (a *Agent) retire() bool {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return false
	}
	a.released = true
	a.gen++
	a.state = StateReleased
	cancel := a.cancelPoll
	a.cancelPoll = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (a *Agent) applyClaimResult(gen uint64, resp service.Response, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A late response after deactivation (or a second activation cycle)
	// must not resurrect the session.
	if a.gen != gen || a.state != StateClaiming {
		return
	}

	if err != nil {
		a.logger.Warn("Claim failed, continuing unheld", zap.Error(err))
		a.state = StateIdle
		return
	}
	if !resp.Success {
		a.logger.Info("Claim denied by current holder",
			zap.Any("states", resp.States))
		a.state = StateIdle
		return
	}
	a.state = StateHeld
}

func (a *Agent) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	lastRenew := time.Now()
	for {
		select {
		case <-ticker.C:
			a.pollOnce(ctx, &lastRenew)
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce fetches lock state, feeds the guard, and renews the lease while
// held. A transport failure on status is fail-open: the guard unblocks and
// the write path stays the enforcement point.
func (a *Agent) pollOnce(ctx context.Context, lastRenew *time.Time) {
	// The agent serializes its own lock operations: while the activation
	// claim is in flight, no status request overlaps it. The claim
	// response settles the state first; the next tick polls.
	a.mu.Lock()
	claiming := a.state == StateClaiming
	a.mu.Unlock()
	if claiming {
		return
	}

	resp, err := a.transport.do(ctx, a.statusRequest())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("Status poll failed, failing open", zap.Error(err))
		a.guard.AllowAll()
		return
	}

	a.guard.Apply(resp.States)
	a.updateHeldState(resp.States)

	if a.shouldRenew(*lastRenew) {
		*lastRenew = time.Now()
		a.renew(ctx)
	}
}

// updateHeldState moves Held to Lost when a watched scope reports another
// holder, which can only happen after the session's own lease expired.
func (a *Agent) updateHeldState(states map[string]int) {
	conflicting := false
	for _, scope := range a.opts.Scopes {
		if value := states[scope]; value != 0 && value != a.opts.LockValue {
			conflicting = true
			break
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateHeld && conflicting {
		a.logger.Warn("Lease lost to another holder")
		a.state = StateLost
	}
}

func (a *Agent) shouldRenew(lastRenew time.Time) bool {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	if state != StateHeld && state != StateLost {
		return false
	}
	return time.Since(lastRenew) >= a.renewInterval
}

// renew re-claims the session's scopes. The claim is re-entrant server-side
// and resets the lease deadline; this is the explicit renewal that keeps a
// long-lived editing session from self-expiring. A Lost session uses the
// same path to re-acquire once the conflicting lease clears.
func (a *Agent) renew(ctx context.Context) {
	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()

	resp, err := a.transport.do(ctx, a.claimRequest())

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.released {
		return
	}
	if err != nil {
		// The lease may still be live; the next poll tick retries.
		a.logger.Warn("Lease renewal failed", zap.Error(err))
		return
	}
	if resp.Success {
		a.state = StateHeld
		return
	}
	if a.state == StateHeld {
		a.logger.Warn("Lease renewal denied", zap.Any("states", resp.States))
		a.state = StateLost
	}
}

func (a *Agent) claimRequest() service.Request {
	return service.Request{
		Action:  service.ActionClaim,
		Scopes:  a.opts.Scopes,
		Access:  a.opts.LockValue,
		Records: a.records(),
	}
}

func (a *Agent) releaseRequest() service.Request {
	return service.Request{
		Action:  service.ActionRelease,
		Scopes:  a.opts.Scopes,
		Access:  a.opts.LockValue,
		Records: a.records(),
	}
}

func (a *Agent) statusRequest() service.Request {
	return service.Request{
		Action:  service.ActionStatus,
		Scopes:  a.opts.Scopes,
		Records: a.records(),
	}
}

func (a *Agent) records() []service.Record {
	records := make([]service.Record, 0, len(a.opts.Scopes))
	for _, scope := range a.opts.Scopes {
		filters := map[string]any{}
		if a.opts.DonorID != 0 {
			filters["donor_id"] = a.opts.DonorID
		}
		for name, value := range a.opts.Filters[""] {
			filters[name] = value
		}
		for name, value := range a.opts.Filters[scope] {
			filters[name] = value
		}
		records = append(records, service.Record{Scope: scope, Filters: filters})
	}
	return records
}
