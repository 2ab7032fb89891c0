package config

import (
	"time"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// Default values for configuration options. These are the base layer of the
// override chain and reproduce the behavior of a run without any config file.
const (
	defaultDownloadPath      = "./Downloaded_Drive_Content"
	defaultTokenFile         = "token.json"
	defaultCredentialsFile   = "credentials.json"
	defaultPageSize          = gdrive.DefaultPageSize
	defaultRetryDelay        = "5s"
	defaultChunkSize         = "1MiB"
	defaultRequestsPerSecond = 10
	defaultBurst             = 10
	defaultConnectTimeout    = "10s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"

	defaultRetryDelayDuration     = 5 * time.Second
	defaultChunkBytes             = 1 << 20
	defaultConnectTimeoutDuration = 10 * time.Second
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	formats := gdrive.DefaultExportFormats()

	return &Config{
		DownloadPath:    defaultDownloadPath,
		TokenFile:       defaultTokenFile,
		CredentialsFile: defaultCredentialsFile,
		Scope:           gdrive.ReadonlyScope,
		Listing: ListingConfig{
			PageSize:   defaultPageSize,
			RetryDelay: defaultRetryDelay,
		},
		Transfer: TransferConfig{
			ChunkSize: defaultChunkSize,
		},
		Export: ExportConfig{
			Document:     formats[gdrive.NativeDocument],
			Spreadsheet:  formats[gdrive.NativeSpreadsheet],
			Presentation: formats[gdrive.NativePresentation],
			Drawing:      formats[gdrive.NativeDrawing],
		},
		Network: NetworkConfig{
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
			ConnectTimeout:    defaultConnectTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
