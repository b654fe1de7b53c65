package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ebalan/recordlock/auth"
)

// Notifier presents a human-readable notice to the user. The guard only
// ever calls Notify; rendering is the surrounding application's concern.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }

// Guard tracks the blocked/allowed signal derived from poll results and
// intercepts UI interaction while blocked. A notice fires once on the
// unblocked-to-blocked transition and again for each intercepted attempt,
// never once per poll, so a held lock does not produce a notification
// storm.
type Guard struct {
	own       int
	scopes    []string
	messages  map[string]string
	notifier  Notifier
	onAllowed func()
	onBlocked func(scope string, states map[string]int)

	mu             sync.Mutex
	blocked        bool
	offendingScope string
	offendingValue int
	states         map[string]int
}

func newGuard(opts Options) *Guard {
	return &Guard{
		own:       opts.LockValue,
		scopes:    opts.Scopes,
		messages:  opts.Messages,
		notifier:  opts.Notifier,
		onAllowed: opts.OnAllowed,
		onBlocked: opts.OnBlocked,
	}
}

// Apply evaluates one poll result. A watched scope held by a non-zero
// value different from the session's own blocks the session.
func (g *Guard) Apply(states map[string]int) {
	statesCopy := make(map[string]int, len(states))
	for scope, value := range states {
		statesCopy[scope] = value
	}

	offendingScope, offendingValue := "", 0
	for _, scope := range g.scopes {
		if value := statesCopy[scope]; value != 0 && value != g.own {
			offendingScope, offendingValue = scope, value
			break
		}
	}
	blocked := offendingValue != 0

	g.mu.Lock()
	wasBlocked := g.blocked
	g.blocked = blocked
	g.offendingScope = offendingScope
	g.offendingValue = offendingValue
	g.states = statesCopy
	g.mu.Unlock()

	if blocked {
		if !wasBlocked && g.notifier != nil {
			g.notifier.Notify(g.messageFor(offendingScope, offendingValue))
		}
		if g.onBlocked != nil {
			g.onBlocked(offendingScope, statesCopy)
		}
		return
	}

	// Controls re-enable silently; only the callback fires.
	if g.onAllowed != nil {
		g.onAllowed()
	}
}

// AllowAll clears the blocked state without a poll result. This is the
// fail-open path taken when lock state cannot be fetched: the UI stays
// usable and the write path remains the enforcement point.
func (g *Guard) AllowAll() {
	g.mu.Lock()
	g.blocked = false
	g.offendingScope = ""
	g.offendingValue = 0
	g.mu.Unlock()

	if g.onAllowed != nil {
		g.onAllowed()
	}
}

// Intercept is called by the UI layer before dispatching an activation
// event on a guarded control. It reports whether the event must be
// suppressed, re-issuing the notice per attempted interaction.
func (g *Guard) Intercept() bool {
	g.mu.Lock()
	blocked := g.blocked
	scope := g.offendingScope
	value := g.offendingValue
	g.mu.Unlock()

	if !blocked {
		return false
	}
	if g.notifier != nil {
		g.notifier.Notify(g.messageFor(scope, value))
	}
	return true
}

// Blocked reports the current blocked signal.
func (g *Guard) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

// Offending returns the scope and holder value responsible for the
// current block, or ("", 0) when unblocked.
func (g *Guard) Offending() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.offendingScope, g.offendingValue
}

// States returns a copy of the last applied state map.
func (g *Guard) States() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	states := make(map[string]int, len(g.states))
	for scope, value := range g.states {
		states[scope] = value
	}
	return states
}

func (g *Guard) messageFor(scope string, value int) string {
	if message, ok := g.messages[scope]; ok {
		return message
	}
	return fmt.Sprintf("This donor's %s record is currently being edited by %s.",
		strings.ReplaceAll(scope, "_", " "), auth.RoleClass(value))
}
