// Package tokenstore keeps the Google OAuth token in the local metadata
// store, sealed under a key derived from a passphrase, so a refreshed
// access token survives restarts.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"golang.org/x/oauth2"
)

const Key = "oauth_token"

type sealed struct {
	Salt       []byte `json:"salt"`
	Verifier   []byte `json:"verifier"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext,omitempty"`
}

// Store seals tokens with a key derived once at Open.
type Store struct {
	kv  metadata.Repository
	key []byte

	mu   sync.Mutex
	salt []byte
}

// Open derives the sealing key from passphrase. If a token was stored
// before, the passphrase must match the one used then or
// cryptox.ErrWrongKey is returned.
func Open(ctx context.Context, kv metadata.Repository, passphrase []byte) (*Store, error) {
	raw, err := kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}

	var rec sealed
	if raw != nil {
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode token store: %w", err)
		}
	}
	if len(rec.Salt) == 0 {
		rec = sealed{Salt: cryptox.NewSalt()}
	}

	key := cryptox.DeriveMasterKey(passphrase, rec.Salt)
	if len(rec.Verifier) > 0 {
		if err := cryptox.CheckVerifier(key, rec.Verifier); err != nil {
			return nil, err
		}
	}
	return &Store{kv: kv, key: key, salt: rec.Salt}, nil
}

// Load returns the stored token, or nil if none was saved.
func (s *Store) Load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := s.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec sealed
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode token store: %w", err)
	}
	if len(rec.Ciphertext) == 0 {
		return nil, nil
	}

	var tok oauth2.Token
	if err := cryptox.DecryptEntry(rec.Ciphertext, rec.Nonce, s.key, &tok); err != nil {
		return nil, fmt.Errorf("open stored token: %w", err)
	}
	return &tok, nil
}

func (s *Store) Save(ctx context.Context, tok *oauth2.Token) error {
	ct, nonce, err := cryptox.EncryptEntry(tok, s.key)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}

	s.mu.Lock()
	rec := sealed{Salt: s.salt, Verifier: cryptox.MakeVerifier(s.key), Nonce: nonce, Ciphertext: ct}
	s.mu.Unlock()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key, b)
}

// Forget removes the stored token and salt.
func (s *Store) Forget(ctx context.Context) error {
	return s.kv.Delete(ctx, Key)
}

// TokenSource wraps base and saves every newly issued access token. Save
// failures are logged; the token is still returned.
func (s *Store) TokenSource(ctx context.Context, base oauth2.TokenSource, log logging.Logger) oauth2.TokenSource {
	return &persisting{ctx: ctx, store: s, base: base, log: log}
}

type persisting struct {
	ctx   context.Context
	store *Store
	base  oauth2.TokenSource
	log   logging.Logger

	mu   sync.Mutex
	last string
}

func (p *persisting) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(p.ctx, tok); err != nil {
			p.log.Warn(p.ctx, "could not persist oauth token", "error", err)
		} else {
			p.last = tok.AccessToken
		}
	}
	return tok, nil
}
