package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/client/config"
	"github.com/dmitrijs2005/gophdrive/internal/client/provision"
	"github.com/dmitrijs2005/gophdrive/internal/client/services"
	"github.com/dmitrijs2005/gophdrive/internal/client/sheets"
	"github.com/dmitrijs2005/gophdrive/internal/client/storage"
	"github.com/dmitrijs2005/gophdrive/internal/client/tokenstore"
	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/retry"
	"golang.org/x/oauth2"
)

// Scopes requested for the Google access token.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/userinfo.email",
}

const auditCapacity = 100

var ErrNoCredentials = errors.New("no Google refresh token configured or stored")

// Options are the inputs that do not come from config.Config.
type Options struct {
	// Passphrase seals the OAuth token in the local database. When empty
	// the token is kept in memory only.
	Passphrase []byte
	UserAgent  string
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer
	// HTTPClient is the transport under every Google call. Tests point it
	// at a local server.
	HTTPClient *http.Client
}

// App is the assembled client.
type App struct {
	Config *config.Config
	Log    logging.Logger

	State       *State
	Identity    *identity.TokenProvider
	Auditor     *identity.Auditor
	Tokens      *tokenstore.Store
	Storage     *storage.Client
	Sheets      *sheets.Client
	Folders     *provision.Provisioner
	Annotations services.AnnotationService
	UserData    services.UserDataService
}

// New builds the service graph. Nothing talks to Google until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	log := logging.New(out, cfg.LogLevel, cfg.LogFormat)

	st, err := OpenState(ctx, cfg.DBPath, cfg.HistoryCapacity)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	ids, err := newIdentity(cfg)
	if err != nil {
		return nil, err
	}
	auditor := identity.NewAuditor(auditCapacity, log)
	guard := &identity.Guard{
		Provider:   ids,
		Authorizer: identity.NewAuthorizer(cfg.AuthorizedRoles, cfg.AuthorizedEmails),
		Auditor:    auditor,
	}

	var store *tokenstore.Store
	if len(opts.Passphrase) > 0 {
		store, err = tokenstore.Open(ctx, st.Metadata, opts.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
	}

	tokens, err := tokenSource(ctx, cfg, store, opts.HTTPClient, log)
	if err != nil {
		return nil, err
	}

	policy := retry.New(cfg.RetryAttempts, cfg.RetryBaseDelay, log)

	drv, err := storage.New(ctx, guard, tokens, policy, log, storage.Options{
		DriveEndpoint:      cfg.DriveEndpoint,
		UserinfoURL:        cfg.UserinfoURL,
		MultipartThreshold: cfg.MultipartThreshold,
		BaseClient:         opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	sh, err := sheets.New(ctx, drv, policy, log, sheets.Options{Endpoint: cfg.SheetsEndpoint})
	if err != nil {
		return nil, err
	}

	folders := provision.New(drv, st.Metadata, provision.Names{
		Project: cfg.ProjectFolderName,
		JSON:    cfg.JSONFolderName,
		PDF:     cfg.PDFFolderName,
	}, log)

	ann := services.NewAnnotationService(drv, sh, folders, st.History, log, services.Options{
		UserAgent:    opts.UserAgent,
		MaxPDFSize:   cfg.MaxPDFSize,
		PDFWarnSize:  cfg.PDFWarnSize,
		ReadyTimeout: cfg.ReadyTimeout,
	})

	return &App{
		Config:      cfg,
		Log:         log,
		State:       st,
		Identity:    ids,
		Auditor:     auditor,
		Tokens:      store,
		Storage:     drv,
		Sheets:      sh,
		Folders:     folders,
		Annotations: ann,
		UserData:    services.NewUserDataService(drv, folders, log),
	}, nil
}

func newIdentity(cfg *config.Config) (*identity.TokenProvider, error) {
	opts := identity.TokenOptions{Namespace: cfg.RolesNamespace}
	if cfg.IDTokenSecret != "" {
		opts.HMACSecret = []byte(cfg.IDTokenSecret)
	}
	if cfg.IDTokenPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.IDTokenPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read identity public key: %w", err)
		}
		opts.RSAPublicKeyPEM = pem
	}
	return identity.NewTokenProvider(cfg.IDToken, opts)
}

// tokenSource refreshes access tokens with the configured OAuth client. A
// token stored by an earlier run wins over the configured refresh token,
// and refreshed tokens are written back when a store is open.
func tokenSource(ctx context.Context, cfg *config.Config, store *tokenstore.Store, hc *http.Client, log logging.Logger) (oauth2.TokenSource, error) {
	var tok *oauth2.Token
	if store != nil {
		stored, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load stored token: %w", err)
		}
		tok = stored
	}
	if tok == nil {
		tok = &oauth2.Token{}
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = cfg.GoogleRefreshToken
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, ErrNoCredentials
	}

	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       Scopes,
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	// The refresh context outlives New, so drop its cancellation.
	base := oc.TokenSource(context.WithoutCancel(ctx), tok)
	if store == nil {
		return base, nil
	}
	return store.TokenSource(context.WithoutCancel(ctx), base, log), nil
}

// Start brings the clients up in dependency order: storage, sheets, then
// the annotation service, which provisions the folder hierarchy.
func (a *App) Start(ctx context.Context) error {
	if err := a.Storage.Start(ctx); err != nil {
		return fmt.Errorf("start storage: %w", err)
	}
	if err := a.Sheets.Start(ctx, a.Config.ReadyTimeout); err != nil {
		return fmt.Errorf("start sheets: %w", err)
	}
	if err := a.Annotations.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize annotations: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	return a.State.Close()
}
