// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Config holds configuration for the report exporter.
type Config struct {
	BaseURL     string // Reporting API base URL
	AccessToken string // Bearer token for every API call
	WorkspaceID string // Workspace (group) whose reports are exported

	Format    string   // Target file format (PDF, PNG)
	PageNames []string // Report pages to export (empty: all)
	URLFilter string   // Optional filter applied at export time

	OutputDir    string        // Directory for exported files
	PollTimeout  time.Duration // Wall-clock bound for one poll sub-loop
	PollInterval time.Duration // Suspension between status polls
	MaxAttempts  int           // Submissions per report before giving up
	HTTPTimeout  time.Duration // Per-request timeout for API calls
	Workers      int           // Concurrent exports during a batch run

	MetricsPort string // Ops server port ("" disables /metrics and /healthz)

	CallbackURL string // Completion webhook URL ("" disables notifications)
	CallbackKey string // HMAC signing key for webhook payloads
}

// Load loads configuration from environment variables.
// The access token is taken from PBI_TOKEN_FILE when set, falling back to
// PBI_ACCESS_TOKEN, so credentials can be mounted as secrets.
func Load() *Config {
	token := GetSecretFile(GetEnv("PBI_TOKEN_FILE", ""))
	if token == "" {
		token = GetEnv("PBI_ACCESS_TOKEN", "")
	}

	return &Config{
		BaseURL:     GetEnv("PBI_BASE_URL", "https://api.powerbi.com/v1.0/myorg"),
		AccessToken: token,
		WorkspaceID: GetEnv("PBI_WORKSPACE_ID", ""),

		Format:    GetEnv("EXPORT_FORMAT", "PNG"),
		PageNames: GetSliceEnv("EXPORT_PAGE_NAMES"),
		URLFilter: GetEnv("EXPORT_URL_FILTER", ""),

		OutputDir:    GetEnv("EXPORT_OUTPUT_DIR", "."),
		PollTimeout:  GetDurationEnv("EXPORT_POLL_TIMEOUT", 10*time.Minute),
		PollInterval: GetDurationEnv("EXPORT_POLL_INTERVAL", 5*time.Second),
		MaxAttempts:  GetIntEnv("EXPORT_MAX_ATTEMPTS", 3),
		HTTPTimeout:  GetDurationEnv("EXPORT_HTTP_TIMEOUT", 30*time.Second),
		Workers:      GetIntEnv("EXPORT_WORKERS", 4),

		MetricsPort: GetEnv("METRICS_PORT", ""),

		CallbackURL: GetEnv("CALLBACK_URL", ""),
		CallbackKey: GetSecretFile(GetEnv("CALLBACK_KEY_FILE", "")),
	}
}
