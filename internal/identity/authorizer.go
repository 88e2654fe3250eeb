package identity

import "strings"

// DefaultRoles grant access to the storage features.
var DefaultRoles = []string{"admin", "code-comprehension", "Code-Comprehension-Project"}

// Authorizer decides whether a principal may use the storage features: it
// needs at least one authorized role, or an email on the allow list.
type Authorizer struct {
	roles  map[string]struct{}
	emails map[string]struct{}
}

func NewAuthorizer(roles, emails []string) *Authorizer {
	a := &Authorizer{
		roles:  make(map[string]struct{}, len(roles)),
		emails: make(map[string]struct{}, len(emails)),
	}
	for _, r := range roles {
		a.roles[r] = struct{}{}
	}
	for _, e := range emails {
		a.emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return a
}

func (a *Authorizer) Authorized(p *Principal) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if _, ok := a.roles[r]; ok {
			return true
		}
	}
	_, ok := a.emails[p.NormalizedEmail()]
	return ok
}
