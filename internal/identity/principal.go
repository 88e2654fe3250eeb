// Package identity adapts the OIDC identity provider session to the rest of
// the client: who is signed in, which roles they hold, and whether they may
// use the cloud storage features.
package identity

import (
	"context"
	"strings"
	"time"
)

// Principal is the signed-in user as reported by the identity provider.
type Principal struct {
	Email       string
	Roles       []string
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the principal carries a token that has not expired
// at now. A zero ExpiresAt means the token does not expire.
func (p *Principal) Valid(now time.Time) bool {
	if p == nil || p.AccessToken == "" {
		return false
	}
	return p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt)
}

// HasRole reports whether role is among the principal's roles.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NormalizedEmail is the lowercase, trimmed email.
func (p *Principal) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(p.Email))
}

// Provider yields the current principal. Implementations return an error
// wrapping common.ErrorUnauthorized when no one is signed in.
type Provider interface {
	Principal(ctx context.Context) (*Principal, error)
}

// StaticProvider always returns the same principal. Handy for tests and for
// service accounts that never sign out.
type StaticProvider struct {
	P   *Principal
	Err error
}

func (s StaticProvider) Principal(context.Context) (*Principal, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.P, nil
}
