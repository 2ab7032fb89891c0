// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive-mirror. Values come from a
// three-layer override chain: defaults -> config file -> environment, with
// CLI flags applied last by the caller through CLIOverrides.
package config

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// Config is the complete run configuration. It is built once by Resolve and
// passed read-only to every component.
type Config struct {
	RootFolderID    string `toml:"root_folder_id"`
	DownloadPath    string `toml:"download_path"`
	TokenFile       string `toml:"token_file"`
	CredentialsFile string `toml:"credentials_file"`

	// Scope is fixed to read-only Drive access and not settable from the file.
	Scope string `toml:"-"`

	Listing  ListingConfig  `toml:"listing"`
	Transfer TransferConfig `toml:"transfer"`
	Export   ExportConfig   `toml:"export"`
	Network  NetworkConfig  `toml:"network"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ListingConfig controls folder listing: page size and the retry policy for
// failed page requests. MaxRetries 0 means retry without limit.
type ListingConfig struct {
	PageSize       int    `toml:"page_size"`
	RetryDelay     string `toml:"retry_delay"`
	MaxRetries     int    `toml:"max_retries"`
	RetryAllErrors bool   `toml:"retry_all_errors"`
}

// TransferConfig controls how file bodies are streamed to disk.
type TransferConfig struct {
	ChunkSize string `toml:"chunk_size"`
}

// ExportConfig maps each Google-native kind to the file extension it is
// exported as.
type ExportConfig struct {
	Document     string `toml:"document"`
	Spreadsheet  string `toml:"spreadsheet"`
	Presentation string `toml:"presentation"`
	Drawing      string `toml:"drawing"`
}

// NetworkConfig controls request pacing and HTTP dialing.
type NetworkConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	ConnectTimeout    string  `toml:"connect_timeout"`
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the optional Prometheus textfile written at the end
// of a run. An empty Textfile disables it.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath   string // --config
	FolderID     string // --folder
	DownloadPath string // --output
}

// Formats returns the export table keyed by native kind.
func (e ExportConfig) Formats() map[string]string {
	return map[string]string{
		gdrive.NativeDocument:     e.Document,
		gdrive.NativeSpreadsheet:  e.Spreadsheet,
		gdrive.NativePresentation: e.Presentation,
		gdrive.NativeDrawing:      e.Drawing,
	}
}

// RetryDelayDuration returns the parsed listing retry delay. Call only on a
// validated config.
func (l ListingConfig) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(l.RetryDelay)
	if err != nil {
		return defaultRetryDelayDuration
	}

	return d
}

// ChunkBytes returns the parsed stream buffer size. Call only on a validated
// config.
func (t TransferConfig) ChunkBytes() int {
	n, err := humanize.ParseBytes(t.ChunkSize)
	if err != nil || n == 0 {
		return defaultChunkBytes
	}

	return int(n)
}

// ConnectTimeoutDuration returns the parsed dial timeout. Call only on a
// validated config.
func (n NetworkConfig) ConnectTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		return defaultConnectTimeoutDuration
	}

	return d
}
