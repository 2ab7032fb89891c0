package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("loaded config file",
		slog.String("path", path),
		slog.Int("keys", len(md.Keys())),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		logger.Debug("no config path, using defaults")
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The returned Config is validated and has its paths expanded.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfg, err := resolve(env, cli, logger)
	if err != nil {
		return nil, err
	}

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ResolveForAuth is Resolve for commands that only touch credentials
// (login, logout). root_folder_id is not required.
func ResolveForAuth(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfg, err := resolve(env, cli, logger)
	if err != nil {
		return nil, err
	}

	if err := validateCredentialPaths(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	if env.FolderID != "" {
		cfg.RootFolderID = env.FolderID
	}

	if env.DownloadPath != "" {
		cfg.DownloadPath = env.DownloadPath
	}

	if cli.FolderID != "" {
		cfg.RootFolderID = cli.FolderID
	}

	if cli.DownloadPath != "" {
		cfg.DownloadPath = cli.DownloadPath
	}

	cfg.DownloadPath = expandTilde(cfg.DownloadPath)
	cfg.TokenFile = expandTilde(cfg.TokenFile)
	cfg.CredentialsFile = expandTilde(cfg.CredentialsFile)
	cfg.Metrics.Textfile = expandTilde(cfg.Metrics.Textfile)

	logger.Debug("resolved config",
		slog.String("config_path", cfgPath),
		slog.String("root_folder_id", cfg.RootFolderID),
		slog.String("download_path", cfg.DownloadPath),
		slog.String("token_file", cfg.TokenFile),
	)

	return cfg, nil
}

// expandTilde replaces a leading "~/" with the user's home directory. If the
// home directory is unknown the path is returned unexpanded.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
