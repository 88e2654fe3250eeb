package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer(t *testing.T) {
	a := NewAuthorizer(DefaultRoles, []string{" Lead@Example.org "})

	tests := []struct {
		name string
		p    *Principal
		want bool
	}{
		{"nil", nil, false},
		{"admin role", &Principal{Email: "x@y.z", Roles: []string{"viewer", "admin"}}, true},
		{"project role", &Principal{Roles: []string{"Code-Comprehension-Project"}}, true},
		{"email allowed case-insensitive", &Principal{Email: "LEAD@example.ORG"}, true},
		{"nothing", &Principal{Email: "x@y.z", Roles: []string{"viewer"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Authorized(tt.p))
		})
	}
}

func TestAuditor_CapsAndCopies(t *testing.T) {
	a := NewAuditor(3, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.Record(ctx, EventRoleCheck, map[string]any{"i": i})
	}

	events := a.Events()
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Details["i"])
	assert.Equal(t, 4, events[2].Details["i"])

	events[0].Type = "tampered"
	assert.Equal(t, EventRoleCheck, a.Events()[0].Type)
}

func TestEvent_Important(t *testing.T) {
	assert.True(t, Event{Type: EventIdentityMismatch}.Important())
	assert.True(t, Event{Type: EventRoleViolation}.Important())
	assert.False(t, Event{Type: EventAuthSuccess}.Important())
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("authorized", func(t *testing.T) {
		aud := NewAuditor(0, nil)
		g := &Guard{
			Provider:   StaticProvider{P: &Principal{Email: "a@b.c", Roles: []string{"admin"}, AccessToken: "t"}},
			Authorizer: NewAuthorizer(DefaultRoles, nil),
			Auditor:    aud,
		}
		p, err := g.Check(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.c", p.Email)
		require.Len(t, aud.Events(), 1)
		assert.Equal(t, EventRoleCheck, aud.Events()[0].Type)
		assert.Equal(t, true, aud.Events()[0].Details["hasAccess"])
	})

	t.Run("role violation", func(t *testing.T) {
		aud := NewAuditor(0, nil)
		g := &Guard{
			Provider:   StaticProvider{P: &Principal{Email: "a@b.c", AccessToken: "t"}},
			Authorizer: NewAuthorizer(DefaultRoles, nil),
			Auditor:    aud,
		}
		_, err := g.Check(ctx)
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
		events := aud.Events()
		require.Len(t, events, 2)
		assert.Equal(t, EventRoleViolation, events[1].Type)
	})

	t.Run("not signed in", func(t *testing.T) {
		aud := NewAuditor(0, nil)
		signedOut := fmt.Errorf("%w: not signed in", common.ErrorUnauthorized)
		g := &Guard{
			Provider:   StaticProvider{Err: signedOut},
			Authorizer: NewAuthorizer(DefaultRoles, nil),
			Auditor:    aud,
		}
		_, err := g.Check(ctx)
		assert.True(t, errors.Is(err, common.ErrorUnauthorized))
		assert.Equal(t, EventAuthFailure, aud.Events()[0].Type)
	})
}
