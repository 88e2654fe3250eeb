// Package config loads runtime configuration for the gophdrive client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A dotenv file (".env", or the path given with -env-file) and the
//     process environment, using GOPHDRIVE_* variables.
//  3. Optional JSON file selected with -c or -config.
//  4. Command-line flags.
//
// Later sources override earlier ones. Sizes are human-readable strings in
// binary units ("5MB" is 5 MiB); durations are Go duration strings.
//
// # JSON schema
//
//	{
//	  "google_client_id": "...apps.googleusercontent.com",
//	  "project_folder_name": "Annotations Project",
//	  "retry_attempts": 3,
//	  "retry_base_delay": "1s",
//	  "multipart_threshold": "5MB",
//	  "ready_timeout": "15s",
//	  "db_path": "gophdrive.db"
//	}
//
// Secrets (client secret, refresh token, ID token, token-cache passphrase)
// are best supplied through the environment.
package config
