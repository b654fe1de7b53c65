package auth

import (
	"context"
	"fmt"
	"strings"
)

// Credential pairs a static bearer token with the actor it identifies.
// Credentials come from configuration; in a full deployment the surrounding
// application would issue them per session.
type Credential struct {
	Token string
	ID    string
	Role  string
}

// TokenAuthenticator implements authentication using static bearer tokens.
type TokenAuthenticator struct {
	actors map[string]Actor
}

// NewTokenAuthenticator creates an authenticator from the configured
// credentials. Tokens must be unique and roles must be known.
func NewTokenAuthenticator(credentials []Credential) (*TokenAuthenticator, error) {
	actors := make(map[string]Actor, len(credentials))
	for _, cred := range credentials {
		if cred.Token == "" {
			continue
		}
		holder, err := HolderValue(cred.Role)
		if err != nil {
			return nil, fmt.Errorf("actor %q: %w: %s", cred.ID, ErrUnknownRole, cred.Role)
		}
		if _, exists := actors[cred.Token]; exists {
			return nil, fmt.Errorf("duplicate token for actor %q", cred.ID)
		}
		actors[cred.Token] = Actor{
			ID:          cred.ID,
			Role:        cred.Role,
			HolderValue: holder,
		}
	}
	return &TokenAuthenticator{actors: actors}, nil
}

// Authenticate validates a token and returns the associated actor.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (Actor, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return Actor{}, ErrAuthenticationFailed
	}

	actor, ok := a.actors[token]
	if !ok {
		return Actor{}, ErrAuthenticationFailed
	}
	return actor, nil
}
