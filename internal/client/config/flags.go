package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

// Flags lists every flag the loader understands, including the -c/-config
// and -env-file selectors. Callers strip them with flagx.SplitArgs before
// reading positional arguments.
var Flags = []string{
	"-c", "-config", "-env-file",
	"-db", "-log-level", "-log-format",
	"-project-folder", "-retry-attempts", "-ready-timeout",
	"-multipart-threshold", "-id-token",
}

// parseFlags overlays cfg with command-line flags. Unknown arguments are
// filtered out first so commands can keep their own positional arguments.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, Flags)

	fs := flag.NewFlagSet("gophdrive", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to JSON config")
	fs.StringVar(&ignored, "config", "", "path to JSON config")
	fs.StringVar(&ignored, "env-file", "", "path to dotenv file")

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "local state database path")
	level := fs.String("log-level", string(cfg.LogLevel), "log level (debug, info, warn, error)")
	format := fs.String("log-format", string(cfg.LogFormat), "log format (text, json)")
	fs.StringVar(&cfg.ProjectFolderName, "project-folder", cfg.ProjectFolderName, "top-level Drive folder name")
	fs.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "attempts per remote call")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "how long to wait for services to start")
	threshold := fs.String("multipart-threshold", "", "largest upload sent as a single multipart request")
	fs.StringVar(&cfg.IDToken, "id-token", cfg.IDToken, "OIDC ID token of the signed-in user")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.LogLevel = logging.Level(*level)
	cfg.LogFormat = logging.Format(*format)
	if *threshold != "" {
		n, err := parseSize(*threshold)
		if err != nil {
			return err
		}
		cfg.MultipartThreshold = n
	}
	return nil
}
