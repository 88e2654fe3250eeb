package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/lifecycle"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	DefaultDriveEndpoint      = "https://www.googleapis.com/drive/v3/"
	DefaultUserinfoURL        = "https://www.googleapis.com/oauth2/v2/userinfo"
	DefaultMultipartThreshold = 5 << 20
)

// Options tunes a Client. Zero values fall back to the Google defaults.
type Options struct {
	DriveEndpoint      string
	UserinfoURL        string
	MultipartThreshold int64

	// BaseClient is the transport under the OAuth2 client. Tests set it to
	// reach an httptest server.
	BaseClient *http.Client
}

// Client talks to Google Drive on behalf of the signed-in principal.
type Client struct {
	guard  *identity.Guard
	tokens oauth2.TokenSource
	http   *http.Client
	drive  *drive.Service
	retry  *retry.Policy
	log    logging.Logger
	opts   Options

	gate lifecycle.Gate

	mu             sync.Mutex
	validatedToken string
}

func New(ctx context.Context, guard *identity.Guard, tokens oauth2.TokenSource, policy *retry.Policy, log logging.Logger, opts Options) (*Client, error) {
	if opts.DriveEndpoint == "" {
		opts.DriveEndpoint = DefaultDriveEndpoint
	}
	if opts.UserinfoURL == "" {
		opts.UserinfoURL = DefaultUserinfoURL
	}
	if opts.MultipartThreshold <= 0 {
		opts.MultipartThreshold = DefaultMultipartThreshold
	}
	if opts.BaseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.BaseClient)
	}

	httpc := oauth2.NewClient(ctx, tokens)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpc), option.WithEndpoint(opts.DriveEndpoint))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Client{
		guard:  guard,
		tokens: tokens,
		http:   httpc,
		drive:  srv,
		retry:  policy,
		log:    log.With("component", "storage"),
		opts:   opts,
	}, nil
}

// HTTPClient returns the authorized HTTP client, shared with the Sheets client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// MultipartThreshold is the largest payload sent as a single request.
func (c *Client) MultipartThreshold() int64 {
	return c.opts.MultipartThreshold
}

// Start checks that an access token can be obtained and marks the client
// ready.
func (c *Client) Start(ctx context.Context) error {
	if _, err := c.token(); err != nil {
		return err
	}
	c.gate.Open()
	c.log.Info(ctx, "storage client ready")
	return nil
}

func (c *Client) Ready() <-chan struct{} {
	return c.gate.Ready()
}

func (c *Client) token() (*oauth2.Token, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: obtain access token: %v", common.ErrorUnauthorized, err)
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, common.ErrTokenExpired)
	}
	return tok, nil
}

// EnsureAuthenticated runs before every operation. It fails with an error
// wrapping common.ErrorUnauthorized when the principal lacks an authorized
// role, no valid access token can be obtained, or the Google account does
// not belong to the principal. Identity is validated once per access token.
func (c *Client) EnsureAuthenticated(ctx context.Context) (*identity.Principal, error) {
	p, err := c.guard.Check(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := c.token()
	if err != nil {
		c.guard.Auditor.Record(ctx, identity.EventAuthFailure, map[string]any{"reason": "token", "userEmail": p.Email})
		return nil, err
	}

	c.mu.Lock()
	validated := c.validatedToken == tok.AccessToken
	c.mu.Unlock()

	if !validated {
		if err := c.validateIdentity(ctx, p); err != nil {
			c.guard.Auditor.Record(ctx, identity.EventAuthFailure, map[string]any{"reason": "identity_validation_failed", "userEmail": p.Email})
			return nil, err
		}
		c.mu.Lock()
		c.validatedToken = tok.AccessToken
		c.mu.Unlock()
		c.guard.Auditor.Record(ctx, identity.EventAuthSuccess, map[string]any{"userEmail": p.Email})
	}

	return p, nil
}

// validateIdentity compares the Google account email with the principal.
// If the userinfo endpoint answers with an error status, a successful
// about.get is accepted instead.
func (c *Client) validateIdentity(ctx context.Context, p *identity.Principal) error {
	email, err := c.userinfoEmail(ctx)
	if err != nil {
		if common.StatusCode(err) == 0 {
			return fmt.Errorf("%w: fetch user info: %v", common.ErrorUnauthorized, err)
		}
		c.log.Warn(ctx, "userinfo request failed, falling back to drive about", "error", err)

		about, aerr := c.drive.About.Get().Fields("user").Context(ctx).Do()
		if aerr != nil {
			return fmt.Errorf("%w: identity validation failed: %v", common.ErrorUnauthorized, WrapError("about", aerr))
		}
		if about.User != nil && about.User.EmailAddress != "" {
			email = about.User.EmailAddress
		} else {
			c.guard.Auditor.Record(ctx, identity.EventIdentityValidated, map[string]any{"method": "drive_api_fallback"})
			return nil
		}
	}

	if !strings.EqualFold(email, p.Email) {
		c.guard.Auditor.Record(ctx, identity.EventIdentityMismatch, map[string]any{
			"googleEmail": strings.ToLower(email),
			"authEmail":   p.NormalizedEmail(),
		})
		return fmt.Errorf("%w: %w: google account %s is not %s",
			common.ErrorUnauthorized, common.ErrIdentityMismatch, email, p.Email)
	}

	c.guard.Auditor.Record(ctx, identity.EventIdentityValidated, map[string]any{"email": strings.ToLower(email)})
	return nil
}

func (c *Client) userinfoEmail(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.UserinfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode user info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("user info has no email")
	}
	return info.Email, nil
}
