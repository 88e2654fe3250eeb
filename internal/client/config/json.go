package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophdrive/internal/flagx"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/timex"
)

// JsonConfig is the on-disk DTO. Pointer and empty values mean "not set" so
// a partial file only overrides what it names.
type JsonConfig struct {
	GoogleClientID       string   `json:"google_client_id"`
	TokenURL             string   `json:"token_url"`
	DriveEndpoint        string   `json:"drive_endpoint"`
	SheetsEndpoint       string   `json:"sheets_endpoint"`
	UserinfoURL          string   `json:"userinfo_url"`
	IDTokenPublicKeyFile string   `json:"id_token_public_key_file"`
	RolesNamespace       string   `json:"roles_namespace"`
	AuthorizedRoles      []string `json:"authorized_roles"`
	AuthorizedEmails     []string `json:"authorized_emails"`

	ProjectFolderName string `json:"project_folder_name"`
	JSONFolderName    string `json:"json_folder_name"`
	PDFFolderName     string `json:"pdf_folder_name"`

	RetryAttempts  *int            `json:"retry_attempts"`
	RetryBaseDelay *timex.Duration `json:"retry_base_delay"`

	MultipartThreshold string `json:"multipart_threshold"`
	MaxPDFSize         string `json:"max_pdf_size"`
	PDFWarnSize        string `json:"pdf_warn_size"`

	ReadyTimeout    *timex.Duration `json:"ready_timeout"`
	HistoryCapacity *int            `json:"history_capacity"`

	DBPath    string `json:"db_path"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// parseJson overlays cfg with the file named by -c/-config, if any.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}
	return jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) error {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&cfg.GoogleClientID, jc.GoogleClientID)
	setStr(&cfg.TokenURL, jc.TokenURL)
	setStr(&cfg.DriveEndpoint, jc.DriveEndpoint)
	setStr(&cfg.SheetsEndpoint, jc.SheetsEndpoint)
	setStr(&cfg.UserinfoURL, jc.UserinfoURL)
	setStr(&cfg.IDTokenPublicKeyFile, jc.IDTokenPublicKeyFile)
	setStr(&cfg.RolesNamespace, jc.RolesNamespace)
	setStr(&cfg.ProjectFolderName, jc.ProjectFolderName)
	setStr(&cfg.JSONFolderName, jc.JSONFolderName)
	setStr(&cfg.PDFFolderName, jc.PDFFolderName)
	setStr(&cfg.DBPath, jc.DBPath)

	if jc.AuthorizedRoles != nil {
		cfg.AuthorizedRoles = jc.AuthorizedRoles
	}
	if jc.AuthorizedEmails != nil {
		cfg.AuthorizedEmails = jc.AuthorizedEmails
	}
	if jc.RetryAttempts != nil {
		cfg.RetryAttempts = *jc.RetryAttempts
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.ReadyTimeout != nil {
		cfg.ReadyTimeout = jc.ReadyTimeout.Duration
	}
	if jc.HistoryCapacity != nil {
		cfg.HistoryCapacity = *jc.HistoryCapacity
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = logging.Level(jc.LogLevel)
	}
	if jc.LogFormat != "" {
		cfg.LogFormat = logging.Format(jc.LogFormat)
	}

	for _, s := range []struct {
		v   string
		dst *int64
	}{
		{jc.MultipartThreshold, &cfg.MultipartThreshold},
		{jc.MaxPDFSize, &cfg.MaxPDFSize},
		{jc.PDFWarnSize, &cfg.PDFWarnSize},
	} {
		if s.v == "" {
			continue
		}
		n, err := parseSize(s.v)
		if err != nil {
			return err
		}
		*s.dst = n
	}
	return nil
}
