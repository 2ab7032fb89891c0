package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-mirror/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagFolderID   string
	flagOutput     string
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Running the root command without a subcommand
// mirrors the configured folder.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdrive-mirror",
		Short: "Mirror a Google Drive folder to a local directory",
		Long: "Recursively copies a Google Drive folder tree to the local filesystem.\n" +
			"Google Docs, Sheets, Slides and Drawings are exported to office formats;\n" +
			"all other files are downloaded byte-for-byte. Nothing is written to Drive.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runMirror,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	addMirrorFlags(cmd)

	cmd.AddCommand(newMirrorCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

// addMirrorFlags registers the flags that override where and what to mirror.
func addMirrorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFolderID, "folder", "", "ID of the Drive folder to mirror")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "local directory to mirror into")
}

func cliOverrides() config.CLIOverrides {
	return config.CLIOverrides{
		ConfigPath:   flagConfigPath,
		FolderID:     flagFolderID,
		DownloadPath: flagOutput,
	}
}

// loadConfig resolves the effective configuration. Auth commands pass
// forAuth so a missing root_folder_id is not an error.
func loadConfig(forAuth bool) (*config.Config, error) {
	logger := bootstrapLogger()
	env := config.ReadEnvOverrides(logger)

	resolve := config.Resolve
	if forAuth {
		resolve = config.ResolveForAuth
	}

	cfg, err := resolve(env, cliOverrides(), logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}

// bootstrapLogger is used before the config is loaded: warnings and errors
// only, unless --verbose.
func bootstrapLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates the run logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. Every record carries the run ID.
func buildLogger(cfg *config.Config, runID string) *slog.Logger {
	return newLogger(os.Stderr, isTerminal(os.Stderr), cfg, runID)
}

func newLogger(w io.Writer, terminal bool, cfg *config.Config, runID string) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler

	switch {
	case cfg.Logging.LogFormat == "json", cfg.Logging.LogFormat == "auto" && !terminal:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("run_id", runID))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
