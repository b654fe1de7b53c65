package agent

import (
	"testing"

	"github.com/ebalan/recordlock/auth"
)

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.messages = append(n.messages, message)
}

func TestGuardNotifiesOnceOnTransition(t *testing.T) {
	notifier := &recordingNotifier{}
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"blood_collection"},
		Notifier:  notifier,
	})

	blocked := map[string]int{"blood_collection": auth.AdminAccess}
	g.Apply(blocked)
	g.Apply(blocked)
	g.Apply(blocked)

	if !g.Blocked() {
		t.Fatal("expected blocked")
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one notice across repeated blocked polls, got %d", len(notifier.messages))
	}
	want := "This donor's blood collection record is currently being edited by an administrator."
	if notifier.messages[0] != want {
		t.Errorf("unexpected notice text:\n got %q\nwant %q", notifier.messages[0], want)
	}
}

func TestGuardRenotifiesAfterUnblock(t *testing.T) {
	notifier := &recordingNotifier{}
	g := newGuard(Options{
		LockValue: auth.AdminAccess,
		Scopes:    []string{"interview"},
		Notifier:  notifier,
	})

	g.Apply(map[string]int{"interview": auth.StaffAccess})
	g.Apply(map[string]int{"interview": 0})
	g.Apply(map[string]int{"interview": auth.StaffAccess})

	if len(notifier.messages) != 2 {
		t.Errorf("expected a fresh notice per blocked episode, got %d", len(notifier.messages))
	}
}

func TestGuardInterceptRenotifiesPerAttempt(t *testing.T) {
	notifier := &recordingNotifier{}
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"interview"},
		Notifier:  notifier,
	})

	g.Apply(map[string]int{"interview": auth.AdminAccess})
	for i := 0; i < 3; i++ {
		if !g.Intercept() {
			t.Fatal("expected interception while blocked")
		}
	}
	// One transition notice plus one per intercepted attempt.
	if len(notifier.messages) != 4 {
		t.Errorf("expected 4 notices, got %d", len(notifier.messages))
	}

	g.Apply(map[string]int{"interview": 0})
	if g.Intercept() {
		t.Error("expected no interception once unblocked")
	}
}

func TestGuardSameValueHolderDoesNotBlock(t *testing.T) {
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"blood_collection"},
	})

	g.Apply(map[string]int{"blood_collection": auth.StaffAccess})
	if g.Blocked() {
		t.Error("a holder of the session's own class must not block it")
	}
}

func TestGuardFirstOffendingScopeWins(t *testing.T) {
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"interview", "blood_collection"},
	})

	g.Apply(map[string]int{
		"interview":        auth.AdminAccess,
		"blood_collection": auth.AdminAccess,
	})

	scope, value := g.Offending()
	if scope != "interview" || value != auth.AdminAccess {
		t.Errorf("expected (interview, 2), got (%s, %d)", scope, value)
	}
}

func TestGuardMessageOverride(t *testing.T) {
	notifier := &recordingNotifier{}
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"interview"},
		Messages:  map[string]string{"interview": "Interview in progress elsewhere."},
		Notifier:  notifier,
	})

	g.Apply(map[string]int{"interview": auth.AdminAccess})
	if len(notifier.messages) != 1 || notifier.messages[0] != "Interview in progress elsewhere." {
		t.Errorf("expected overridden notice, got %v", notifier.messages)
	}
}

func TestGuardUnblockIsSilent(t *testing.T) {
	notifier := &recordingNotifier{}
	var allowed, blockedCalls int
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"interview"},
		Notifier:  notifier,
		OnAllowed: func() { allowed++ },
		OnBlocked: func(string, map[string]int) { blockedCalls++ },
	})

	g.Apply(map[string]int{"interview": auth.AdminAccess})
	g.Apply(map[string]int{"interview": 0})

	if len(notifier.messages) != 1 {
		t.Errorf("unblocking must not notify, got %d notices", len(notifier.messages))
	}
	if blockedCalls != 1 || allowed != 1 {
		t.Errorf("expected one blocked and one allowed callback, got %d/%d", blockedCalls, allowed)
	}
}

func TestGuardAllowAll(t *testing.T) {
	var allowed int
	g := newGuard(Options{
		LockValue: auth.StaffAccess,
		Scopes:    []string{"interview"},
		OnAllowed: func() { allowed++ },
	})

	g.Apply(map[string]int{"interview": auth.AdminAccess})
	g.AllowAll()

	if g.Blocked() {
		t.Error("expected AllowAll to clear the block")
	}
	if g.Intercept() {
		t.Error("expected no interception after AllowAll")
	}
	if allowed != 1 {
		t.Errorf("expected onAllowed to fire once, got %d", allowed)
	}
}
