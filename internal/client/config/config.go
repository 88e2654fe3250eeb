package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/identity"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/docker/go-units"
)

// Config holds runtime settings for the gophdrive client.
type Config struct {
	// Google OAuth client used to mint Drive/Sheets access tokens.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	TokenURL           string

	// API endpoints. Overridable so tests can point them at a local server.
	DriveEndpoint  string
	SheetsEndpoint string
	UserinfoURL    string

	// Identity provider session.
	IDToken              string
	IDTokenSecret        string
	IDTokenPublicKeyFile string
	RolesNamespace       string
	AuthorizedRoles      []string
	AuthorizedEmails     []string

	ProjectFolderName string
	JSONFolderName    string
	PDFFolderName     string

	RetryAttempts  int
	RetryBaseDelay time.Duration

	MultipartThreshold int64
	MaxPDFSize         int64
	PDFWarnSize        int64

	ReadyTimeout    time.Duration
	HistoryCapacity int

	DBPath          string
	TokenPassphrase string

	LogLevel  logging.Level
	LogFormat logging.Format
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.TokenURL = "https://oauth2.googleapis.com/token"
	c.DriveEndpoint = "https://www.googleapis.com/drive/v3/"
	c.SheetsEndpoint = "https://sheets.googleapis.com/"
	c.UserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	c.AuthorizedRoles = append([]string(nil), identity.DefaultRoles...)
	c.AuthorizedEmails = nil

	c.ProjectFolderName = "Annotations Project"
	c.JSONFolderName = "JSON Sheets"
	c.PDFFolderName = "PDF Files"

	c.RetryAttempts = 3
	c.RetryBaseDelay = time.Second

	c.MultipartThreshold = 5 * units.MiB
	c.MaxPDFSize = 100 * units.MiB
	c.PDFWarnSize = 10 * units.MiB

	c.ReadyTimeout = 15 * time.Second
	c.HistoryCapacity = 50

	c.DBPath = "gophdrive.db"

	c.LogLevel = logging.LevelInfo
	c.LogFormat = logging.FormatText
}

// LoadConfig builds a Config from defaults, the environment, an optional
// JSON file and command-line flags, then validates it. args excludes the
// program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg, args); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.LogFormat.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, errors.New("retry_base_delay must not be negative"))
	}
	if c.MultipartThreshold <= 0 {
		errs = append(errs, errors.New("multipart_threshold must be positive"))
	}
	if c.MaxPDFSize <= 0 {
		errs = append(errs, errors.New("max_pdf_size must be positive"))
	}
	if c.PDFWarnSize <= 0 || c.PDFWarnSize > c.MaxPDFSize {
		errs = append(errs, errors.New("pdf_warn_size must be positive and not above max_pdf_size"))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("ready_timeout must be positive"))
	}
	if c.HistoryCapacity < 1 {
		errs = append(errs, errors.New("history_capacity must be at least 1"))
	}
	for name, v := range map[string]string{
		"project_folder_name": c.ProjectFolderName,
		"json_folder_name":    c.JSONFolderName,
		"pdf_folder_name":     c.PDFFolderName,
		"db_path":             c.DBPath,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s required", name))
		}
	}

	return errors.Join(errs...)
}

// parseSize accepts "5MB", "512k" or a plain byte count.
func parseSize(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
