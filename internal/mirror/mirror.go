package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

var (
	// ErrInvalidRoot means the root folder's metadata could not be fetched.
	ErrInvalidRoot = errors.New("mirror: invalid root folder")
	// ErrRootNotFolder means the root id names a file, not a folder.
	ErrRootNotFolder = errors.New("mirror: root is not a folder")
)

// Options configures a mirror run.
type Options struct {
	RootFolderID string
	DownloadPath string
	// ExportFormats maps native kinds to export extensions.
	ExportFormats map[string]string
	ChunkSize     int
	Retry         RetryPolicy
	Logger        *slog.Logger
	Status        Statusf
}

// Mirror runs one full copy of a remote folder tree.
type Mirror struct {
	remote Remote
	opts   Options
	logger *slog.Logger

	// sleepFunc overrides the walker's retry wait. Nil keeps the default.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Mirror over remote.
func New(remote Remote, opts Options) *Mirror {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Mirror{remote: remote, opts: opts, logger: logger}
}

// Run resolves the root folder, mirrors it into DownloadPath/<root name>, and
// returns a summary. The summary is returned even when the walk stops on a
// fatal error, so callers can report partial progress.
func (m *Mirror) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RootID: m.opts.RootFolderID, Started: time.Now()}
	defer func() { summary.Duration = time.Since(summary.Started) }()

	root, err := m.remote.GetItem(ctx, m.opts.RootFolderID)
	if err != nil {
		return summary, fmt.Errorf("%w %s: %w", ErrInvalidRoot, m.opts.RootFolderID, err)
	}

	if root.Kind != gdrive.KindFolder {
		return summary, fmt.Errorf("%w: %s (%s) has type %s",
			ErrRootNotFolder, root.Name, m.opts.RootFolderID, root.MimeType)
	}

	summary.RootName = rootDirName(root.Name)
	summary.BasePath = filepath.Join(m.opts.DownloadPath, summary.RootName)

	m.opts.Status.printf("Downloading folder '%s'...\n", summary.RootName)
	m.logger.Info("mirror started",
		slog.String("root_id", m.opts.RootFolderID),
		slog.String("root_name", summary.RootName),
		slog.String("base_path", summary.BasePath),
	)

	dl := NewDownloader(m.remote, m.opts.ExportFormats, m.opts.ChunkSize, m.logger, m.opts.Status)
	walker := NewWalker(m.remote, dl, m.opts.Retry, &summary.Stats, m.logger, m.opts.Status)

	if m.sleepFunc != nil {
		walker.sleepFunc = m.sleepFunc
	}

	if err := walker.Walk(ctx, m.opts.RootFolderID, summary.BasePath); err != nil {
		return summary, err
	}

	m.logger.Info("mirror complete",
		slog.Int("folders", summary.Folders),
		slog.Int("downloaded", summary.Downloaded),
		slog.Int("exported", summary.Exported),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Int64("bytes", summary.Bytes),
		slog.Int("listing_retries", summary.ListingRetries),
		slog.Int("abandoned_folders", summary.AbandonedFolders),
	)

	return summary, nil
}
