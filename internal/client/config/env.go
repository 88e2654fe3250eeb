package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the client reads.
const EnvPrefix = "GOPHDRIVE_"

const defaultEnvFile = ".env"

// parseEnv loads a dotenv file into the process environment (existing
// variables win) and overlays cfg with GOPHDRIVE_* values. A missing default
// .env is ignored; a missing file named with -env-file is an error.
func parseEnv(cfg *Config, args []string) error {
	path := flagx.EnvFileFlag(args)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	return applyEnv(cfg, os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	str("GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	str("GOOGLE_REFRESH_TOKEN", &cfg.GoogleRefreshToken)
	str("TOKEN_URL", &cfg.TokenURL)
	str("DRIVE_ENDPOINT", &cfg.DriveEndpoint)
	str("SHEETS_ENDPOINT", &cfg.SheetsEndpoint)
	str("USERINFO_URL", &cfg.UserinfoURL)
	str("ID_TOKEN", &cfg.IDToken)
	str("ID_TOKEN_SECRET", &cfg.IDTokenSecret)
	str("ID_TOKEN_PUBLIC_KEY_FILE", &cfg.IDTokenPublicKeyFile)
	str("ROLES_NAMESPACE", &cfg.RolesNamespace)
	list("AUTHORIZED_ROLES", &cfg.AuthorizedRoles)
	list("AUTHORIZED_EMAILS", &cfg.AuthorizedEmails)
	str("PROJECT_FOLDER", &cfg.ProjectFolderName)
	str("JSON_FOLDER", &cfg.JSONFolderName)
	str("PDF_FOLDER", &cfg.PDFFolderName)
	str("DB_PATH", &cfg.DBPath)
	str("TOKEN_PASSPHRASE", &cfg.TokenPassphrase)

	var level, format string
	str("LOG_LEVEL", &level)
	str("LOG_FORMAT", &format)
	if level != "" {
		cfg.LogLevel = logging.Level(level)
	}
	if format != "" {
		cfg.LogFormat = logging.Format(format)
	}

	var errs []error
	intVar := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	durVar := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	sizeVar := func(key string, dst *int64) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := parseSize(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	intVar("RETRY_ATTEMPTS", &cfg.RetryAttempts)
	durVar("RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	sizeVar("MULTIPART_THRESHOLD", &cfg.MultipartThreshold)
	sizeVar("MAX_PDF_SIZE", &cfg.MaxPDFSize)
	sizeVar("PDF_WARN_SIZE", &cfg.PDFWarnSize)
	durVar("READY_TIMEOUT", &cfg.ReadyTimeout)
	intVar("HISTORY_CAPACITY", &cfg.HistoryCapacity)

	return errors.Join(errs...)
}
