package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// TokenOptions configures how ID tokens are read.
type TokenOptions struct {
	// Namespace is the custom claim prefix, e.g. "https://example.org".
	// Roles are then read from "<Namespace>/roles" as well.
	Namespace string

	// HMACSecret verifies HS256 tokens.
	HMACSecret []byte
	// RSAPublicKeyPEM verifies RS256 tokens. Ignored when HMACSecret is set.
	RSAPublicKeyPEM []byte

	Now func() time.Time
}

// TokenProvider builds a Principal from an OIDC ID token (a JWT). When a
// verification key is configured the signature and expiry are checked;
// otherwise the claims are read as-is and only expiry is enforced.
type TokenProvider struct {
	opts   TokenOptions
	rsaKey *rsa.PublicKey

	mu    sync.RWMutex
	token string
}

func NewTokenProvider(idToken string, opts TokenOptions) (*TokenProvider, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &TokenProvider{opts: opts, token: idToken}

	if len(opts.HMACSecret) == 0 && len(opts.RSAPublicKeyPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(opts.RSAPublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse identity public key: %w", err)
		}
		p.rsaKey = key
	}
	return p, nil
}

// SetToken replaces the current ID token (sign-in or silent renewal).
func (p *TokenProvider) SetToken(idToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = idToken
}

// Clear signs the user out.
func (p *TokenProvider) Clear() {
	p.SetToken("")
}

func (p *TokenProvider) Principal(ctx context.Context) (*Principal, error) {
	p.mu.RLock()
	tok := p.token
	p.mu.RUnlock()

	if tok == "" {
		return nil, common.Unauthorizedf("not signed in")
	}

	claims, err := p.parse(tok)
	if err != nil {
		return nil, err
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: %w: no email claim", common.ErrorUnauthorized, common.ErrInvalidToken)
	}

	pr := &Principal{
		Email:       email,
		Roles:       RolesFromClaims(claims, p.opts.Namespace),
		AccessToken: tok,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		pr.ExpiresAt = exp.Time
	}
	return pr, nil
}

func (p *TokenProvider) parse(tok string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	switch {
	case len(p.opts.HMACSecret) > 0:
		_, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
			return p.opts.HMACSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(p.opts.Now))
		if err != nil {
			return nil, tokenError(err)
		}
	case p.rsaKey != nil:
		_, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
			return p.rsaKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(p.opts.Now))
		if err != nil {
			return nil, tokenError(err)
		}
	default:
		if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
			return nil, tokenError(err)
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !p.opts.Now().Before(exp.Time) {
			return nil, tokenError(jwt.ErrTokenExpired)
		}
	}
	return claims, nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", common.ErrorUnauthorized, common.ErrTokenExpired)
	}
	return fmt.Errorf("%w: %w: %v", common.ErrorUnauthorized, common.ErrInvalidToken, err)
}

// RolesFromClaims collects roles from every claim location identity
// providers commonly use, in a fixed order, without duplicates.
func RolesFromClaims(claims map[string]any, namespace string) []string {
	var sources [][]string
	if namespace != "" {
		sources = append(sources, stringsAt(claims, namespace+"/roles"))
	}
	sources = append(sources,
		stringsAt(claims, "https://auth0.com/roles"),
		stringsAt(claims, "app_metadata", "roles"),
		stringsAt(claims, "user_metadata", "roles"),
		stringsAt(claims, "roles"),
		stringsAt(claims, "authorization", "roles"),
		stringsAt(claims, "org_roles"),
		stringsAt(claims, "realm_roles"),
	)

	seen := map[string]struct{}{}
	roles := []string{}
	for _, src := range sources {
		for _, r := range src {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	return roles
}

func stringsAt(m map[string]any, path ...string) []string {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}

	switch v := cur.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}
