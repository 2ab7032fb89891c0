package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "GDRIVE_MIRROR_CONFIG"
	EnvFolderID     = "GDRIVE_MIRROR_FOLDER_ID"
	EnvDownloadPath = "GDRIVE_MIRROR_DOWNLOAD_PATH"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // GDRIVE_MIRROR_CONFIG: override config file path
	FolderID     string // GDRIVE_MIRROR_FOLDER_ID: root folder to mirror
	DownloadPath string // GDRIVE_MIRROR_DOWNLOAD_PATH: local destination
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	o := EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		FolderID:     os.Getenv(EnvFolderID),
		DownloadPath: os.Getenv(EnvDownloadPath),
	}

	logger.Debug("read environment overrides",
		slog.String("config_path", o.ConfigPath),
		slog.String("folder_id", o.FolderID),
		slog.String("download_path", o.DownloadPath),
	)

	return o
}
