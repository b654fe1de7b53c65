// Package auth maps opaque bearer tokens supplied by the surrounding
// donor-management application onto actor identities. The lock core never
// derives identity itself; it only consumes the actor's role-derived
// holder value.
package auth

import (
	"context"
	"errors"
)

// Roles recognized by the surrounding application.
const (
	RoleAdmin        = "admin"
	RoleInterviewer  = "interviewer"
	RoleStaff        = "staff"
	RolePhlebotomist = "phlebotomist"
)

// Holder values encode actor precedence in the lease table. Zero means
// unlocked and is never a valid actor value.
const (
	StaffAccess = 1
	AdminAccess = 2
)

// Common authentication errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnknownRole          = errors.New("unknown actor role")
)

// Actor is the session identity supplied to the lock core.
type Actor struct {
	ID          string
	Role        string
	HolderValue int
}

// Authenticator defines the interface for actor authentication.
type Authenticator interface {
	// Authenticate validates a token and returns the associated actor.
	Authenticate(ctx context.Context, token string) (Actor, error)
}

// HolderValue maps a role onto its lease precedence value. Admin-class
// actors carry 2; interviewer, staff and phlebotomist sessions all share
// the staff-class value 1, so same-class actors do not block each other.
func HolderValue(role string) (int, error) {
	switch role {
	case RoleAdmin:
		return AdminAccess, nil
	case RoleInterviewer, RoleStaff, RolePhlebotomist:
		return StaffAccess, nil
	default:
		return 0, ErrUnknownRole
	}
}

// RoleClass names the actor class behind a holder value, for user-facing
// conflict messages.
func RoleClass(holderValue int) string {
	switch holderValue {
	case AdminAccess:
		return "an administrator"
	case StaffAccess:
		return "another staff member"
	default:
		return "another user"
	}
}
