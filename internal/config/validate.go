package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// Validation range constants.
const (
	minPageSize       = 1
	maxPageSize       = 1000
	minRetryDelay     = 100 * time.Millisecond
	minChunkBytes     = 4 * 1024
	maxChunkBytes     = 256 * 1024 * 1024
	minConnectTimeout = 1 * time.Second
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns every error found,
// so a broken file can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateListing(&cfg.Listing)...)
	errs = append(errs, validateTransfer(&cfg.Transfer)...)
	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold after environment and
// CLI overrides have been applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.RootFolderID) == "" {
		errs = append(errs, fmt.Errorf(
			"root_folder_id: must be set (config file, %s, or --folder)", EnvFolderID))
	}

	if cfg.DownloadPath == "" {
		errs = append(errs, errors.New("download_path: must not be empty"))
	}

	errs = append(errs, validateCredentialPaths(cfg))

	return errors.Join(errs...)
}

func validateCredentialPaths(cfg *Config) error {
	var errs []error

	if cfg.TokenFile == "" {
		errs = append(errs, errors.New("token_file: must not be empty"))
	}

	if cfg.CredentialsFile == "" {
		errs = append(errs, errors.New("credentials_file: must not be empty"))
	}

	return errors.Join(errs...)
}

func validateListing(l *ListingConfig) []error {
	var errs []error

	if l.PageSize < minPageSize || l.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("listing.page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, l.PageSize))
	}

	if err := validateDurationMin("listing.retry_delay", l.RetryDelay, minRetryDelay); err != nil {
		errs = append(errs, err)
	}

	if l.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("listing.max_retries: must be >= 0 (0 = unbounded), got %d", l.MaxRetries))
	}

	return errs
}

func validateTransfer(t *TransferConfig) []error {
	n, err := humanize.ParseBytes(t.ChunkSize)
	if err != nil {
		return []error{fmt.Errorf("transfer.chunk_size: %w", err)}
	}

	if n < minChunkBytes || n > maxChunkBytes {
		return []error{fmt.Errorf("transfer.chunk_size: must be between %s and %s, got %s",
			humanize.IBytes(minChunkBytes), humanize.IBytes(maxChunkBytes), t.ChunkSize)}
	}

	return nil
}

func validateExport(e *ExportConfig) []error {
	var errs []error

	for _, kind := range gdrive.ExportableKinds() {
		ext := e.Formats()[kind]
		if err := gdrive.ValidateExportFormat(kind, ext); err != nil {
			errs = append(errs, fmt.Errorf("export.%s: %w", kind, err))
		}
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("network.requests_per_second: must be >= 0 (0 = unlimited), got %g",
			n.RequestsPerSecond))
	}

	if n.RequestsPerSecond > 0 && n.Burst < 1 {
		errs = append(errs, fmt.Errorf("network.burst: must be >= 1 when pacing is enabled, got %d", n.Burst))
	}

	if err := validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", field, minimum, value)
	}

	return nil
}
