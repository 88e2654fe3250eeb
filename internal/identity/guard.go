package identity

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Guard combines a Provider, an Authorizer and an Auditor into the single
// role check run before any cloud call.
type Guard struct {
	Provider   Provider
	Authorizer *Authorizer
	Auditor    *Auditor
}

// Check returns the signed-in principal if they may use cloud storage.
// Every failure wraps common.ErrorUnauthorized.
func (g *Guard) Check(ctx context.Context) (*Principal, error) {
	p, err := g.Provider.Principal(ctx)
	if err != nil {
		g.Auditor.Record(ctx, EventAuthFailure, map[string]any{"reason": err.Error()})
		return nil, err
	}

	ok := g.Authorizer.Authorized(p)
	g.Auditor.Record(ctx, EventRoleCheck, map[string]any{
		"hasAccess": ok,
		"userEmail": p.Email,
		"roles":     p.Roles,
	})
	if !ok {
		g.Auditor.Record(ctx, EventRoleViolation, map[string]any{"userEmail": p.Email})
		return nil, common.Unauthorizedf("user %s lacks an authorized role", p.Email)
	}
	return p, nil
}
