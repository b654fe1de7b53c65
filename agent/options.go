// Package agent implements the per-session client of the lock coordinator:
// it claims a lease on activation, polls lock state on an interval, renews
// the lease while held, guards UI interaction while another actor class
// holds the lock, and releases best-effort on teardown.
package agent

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/auth"
)

const (
	// DefaultPollInterval matches the interval the guard clients have
	// always used.
	DefaultPollInterval = 25 * time.Second

	// MinPollInterval bounds server load from misconfigured clients.
	MinPollInterval = 5 * time.Second
)

// Options configures one agent session.
type Options struct {
	// Endpoint is the coordinator base URL, e.g. "https://host:8440".
	Endpoint string

	// Token is the bearer token identifying this session's actor.
	Token string

	// Scope watches a single scope; Scopes watches several. At least one
	// of the two is required.
	Scope  string
	Scopes []string

	// DonorID identifies the record under edit. It becomes the donor_id
	// filter field for every watched scope.
	DonorID int

	// LockValue is the session's holder value. When zero it is derived
	// from Role.
	LockValue int

	// Role derives LockValue when LockValue is zero.
	Role string

	// Messages overrides the blocked-notification text per scope.
	Messages map[string]string

	// Filters adds identifying filter fields per scope (keyed by scope
	// name). The empty key applies to every scope.
	Filters map[string]map[string]any

	// OnAllowed is invoked after every evaluation that leaves the session
	// unblocked, including fail-open evaluations.
	OnAllowed func()

	// OnBlocked is invoked after every evaluation that leaves the session
	// blocked, with the offending scope and the full state map.
	OnBlocked func(scope string, states map[string]int)

	// Notifier presents blocked notices to the user. Nil disables notices.
	Notifier Notifier

	// PollInterval is the status poll cadence. Values below MinPollInterval
	// are raised to it; zero selects DefaultPollInterval.
	PollInterval time.Duration

	// RenewInterval is how often a held lease is re-claimed to push its
	// deadline out. Zero selects the poll interval, so renewal rides every
	// poll tick.
	RenewInterval time.Duration

	// HTTPClient overrides the transport client.
	HTTPClient *http.Client

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (o *Options) normalize() error {
	if o.Endpoint == "" {
		return errors.New("agent requires an endpoint")
	}
	if o.Scope != "" {
		o.Scopes = append([]string{o.Scope}, o.Scopes...)
	}
	if len(o.Scopes) == 0 {
		return errors.New("agent requires at least one scope")
	}

	if o.LockValue == 0 {
		if o.Role == "" {
			return errors.New("agent requires a lock value or a role")
		}
		value, err := auth.HolderValue(o.Role)
		if err != nil {
			return err
		}
		o.LockValue = value
	}
	if o.LockValue <= 0 {
		return errors.New("lock value must be a positive integer")
	}

	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollInterval < MinPollInterval {
		o.PollInterval = MinPollInterval
	}
	if o.RenewInterval == 0 {
		o.RenewInterval = o.PollInterval
	}

	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return nil
}
