package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-mirror/internal/config"
	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
	"github.com/tonimelisma/gdrive-mirror/internal/metrics"
	"github.com/tonimelisma/gdrive-mirror/internal/mirror"
)

func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the configured Drive folder tree to the local download path",
		Long: `Walk the Drive folder named by root_folder_id (or --folder) and copy every
item below it into <download_path>/<folder name>. Existing local files are
overwritten; nothing is ever deleted locally or modified on Drive.`,
		Args: cobra.NoArgs,
		RunE: runMirror,
	}

	addMirrorFlags(cmd)

	return cmd
}

func runMirror(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := buildLogger(cfg, runID)

	ctx := shutdownContext(cmd.Context(), logger)

	ts, err := gdrive.ObtainTokenSource(ctx, gdrive.AuthOptions{
		TokenPath:       cfg.TokenFile,
		CredentialsPath: cfg.CredentialsFile,
		Scope:           cfg.Scope,
		OpenURL:         openBrowser,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("authorizing: %w", err)
	}

	client, err := gdrive.NewClient(ctx, gdrive.Options{
		HTTPClient:        gdrive.NewHTTPClient(ts, cfg.Network.ConnectTimeoutDuration()),
		PageSize:          cfg.Listing.PageSize,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		Burst:             cfg.Network.Burst,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	return mirrorTree(ctx, client, cfg, logger, os.Stdout)
}

// mirrorTree runs one mirror pass over remote and reports the outcome. The
// metrics textfile, when configured, is written for failed runs too.
func mirrorTree(ctx context.Context, remote mirror.Remote, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	m := mirror.New(remote, mirror.Options{
		RootFolderID:  cfg.RootFolderID,
		DownloadPath:  cfg.DownloadPath,
		ExportFormats: cfg.Export.Formats(),
		ChunkSize:     cfg.Transfer.ChunkBytes(),
		Retry: mirror.RetryPolicy{
			Delay:      cfg.Listing.RetryDelayDuration(),
			MaxRetries: cfg.Listing.MaxRetries,
			RetryAll:   cfg.Listing.RetryAllErrors,
		},
		Logger: logger,
		Status: func(format string, args ...any) { statusf(format, args...) },
	})

	summary, runErr := m.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, summary, runErr == nil); err != nil {
			logger.Warn("writing metrics textfile failed",
				slog.String("path", cfg.Metrics.Textfile),
				slog.String("error", err.Error()),
			)
		}
	}

	if runErr != nil {
		return runErr
	}

	statusf("\nDownload complete! Folder structure preserved.\n")
	statusf("Files saved to: %s\n", summary.BasePath)

	if !flagQuiet {
		printSummary(out, summary)
	}

	return nil
}

// printSummary writes the per-run counters as a two-column table.
func printSummary(w io.Writer, s *mirror.Summary) {
	rows := [][]string{
		{"Folders", humanize.Comma(int64(s.Folders))},
		{"Downloaded", humanize.Comma(int64(s.Downloaded))},
		{"Exported", humanize.Comma(int64(s.Exported))},
		{"Skipped", humanize.Comma(int64(s.Skipped))},
		{"Failed", humanize.Comma(int64(s.Failed))},
		{"Written", formatSize(s.Bytes)},
		{"Listing retries", humanize.Comma(int64(s.ListingRetries))},
		{"Abandoned folders", humanize.Comma(int64(s.AbandonedFolders))},
		{"Elapsed", formatDuration(s.Duration)},
	}

	fmt.Fprintln(w)
	printTable(w, []string{"ITEM", "COUNT"}, rows)
}
