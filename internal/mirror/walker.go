package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

const (
	dirPermissions    = 0o755
	defaultRetryDelay = 5 * time.Second
)

// errFolderAbandoned marks a listing failure that gives up on one folder
// without stopping the run.
var errFolderAbandoned = errors.New("mirror: folder listing abandoned")

// RetryPolicy controls what happens when a listing page request fails.
type RetryPolicy struct {
	// Delay is the fixed wait before retrying the same page.
	Delay time.Duration
	// MaxRetries bounds retries per page. Zero retries without limit.
	MaxRetries int
	// RetryAll retries every error. Otherwise only transient errors are
	// retried and permanent ones abandon the folder.
	RetryAll bool
}

// folderTask is one pending folder on the work stack. name is empty for the
// root.
type folderTask struct {
	id   string
	name string
	dir  string
}

// Walker visits a folder tree depth-first using an explicit work stack,
// creating a directory per folder and handing every other item to the
// Downloader.
type Walker struct {
	lister     Lister
	downloader *Downloader
	policy     RetryPolicy
	stats      *Stats
	logger     *slog.Logger
	status     Statusf

	// sleepFunc waits between listing retries. Defaults to timeSleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewWalker creates a Walker that records into stats.
func NewWalker(
	lister Lister, downloader *Downloader, policy RetryPolicy,
	stats *Stats, logger *slog.Logger, status Statusf,
) *Walker {
	if policy.Delay <= 0 {
		policy.Delay = defaultRetryDelay
	}

	return &Walker{
		lister:     lister,
		downloader: downloader,
		policy:     policy,
		stats:      stats,
		logger:     logger,
		status:     status,
		sleepFunc:  timeSleep,
	}
}

// Walk mirrors folderID into localDir. It returns an error only for fatal
// conditions: localDir itself cannot be created, authorization is lost, or
// the context is canceled. Per-item failures and abandoned folders are
// counted in Stats.
func (w *Walker) Walk(ctx context.Context, folderID, localDir string) error {
	if err := os.MkdirAll(localDir, dirPermissions); err != nil {
		return fmt.Errorf("mirror: creating directory %s: %w", localDir, err)
	}

	stack := []folderTask{{id: folderID, dir: localDir}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subfolders, err := w.visit(ctx, task)
		if err != nil {
			return err
		}

		// Reverse push so subfolders pop in listing order.
		for i := len(subfolders) - 1; i >= 0; i-- {
			stack = append(stack, subfolders[i])
		}
	}

	return nil
}

// visit pages through a folder's children, downloads non-folders, creates a
// directory for each subfolder as it is listed, and returns the subfolders
// still to be visited. The folder's own directory already exists.
func (w *Walker) visit(ctx context.Context, task folderTask) ([]folderTask, error) {
	if task.name != "" {
		w.status.printf("Entering folder: %s\n", task.name)
	}

	w.stats.Folders++
	w.logger.Debug("visiting folder", slog.String("folder_id", task.id), slog.String("dir", task.dir))

	var (
		subfolders []folderTask
		cursor     string
	)

	for {
		page, err := w.listPage(ctx, task.id, cursor)
		if errors.Is(err, errFolderAbandoned) {
			w.abandon(task.id, task.dir, err)
			return subfolders, nil
		}

		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Kind == gdrive.KindFolder {
				dir := filepath.Join(task.dir, LocalName(item.Name))

				// A file of the same name may already occupy the path.
				if err := os.MkdirAll(dir, dirPermissions); err != nil {
					w.abandon(item.ID, dir, fmt.Errorf("%w: creating directory: %w", errFolderAbandoned, err))
					continue
				}

				subfolders = append(subfolders, folderTask{id: item.ID, name: item.Name, dir: dir})

				continue
			}

			res := w.downloader.Download(ctx, item, task.dir)
			w.stats.record(res)

			if res.Outcome == OutcomeFailed && gdrive.IsAuthFailure(res.Err) {
				return nil, fmt.Errorf("mirror: downloading %s: %w", item.Name, res.Err)
			}

			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if page.NextPageToken == "" {
			return subfolders, nil
		}

		cursor = page.NextPageToken
	}
}

// abandon gives up on one folder and its subtree without stopping the run.
func (w *Walker) abandon(folderID, dir string, err error) {
	w.stats.AbandonedFolders++
	w.status.printf("  Giving up on folder %s: %v\n", dir, err)
	w.logger.Error("abandoning folder",
		slog.String("folder_id", folderID),
		slog.String("dir", dir),
		slog.String("error", err.Error()),
	)
}

// listPage requests one page, retrying the same cursor per the policy.
// It returns an error wrapping errFolderAbandoned when the folder should be
// given up. Authorization failures and cancellation end the run.
func (w *Walker) listPage(ctx context.Context, folderID, cursor string) (*gdrive.Page, error) {
	for attempt := 0; ; attempt++ {
		page, err := w.lister.ListChildren(ctx, folderID, cursor)
		if err == nil {
			return page, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if gdrive.IsAuthFailure(err) {
			return nil, fmt.Errorf("mirror: listing folder %s: %w", folderID, err)
		}

		if !w.policy.RetryAll && !gdrive.IsTransient(err) {
			return nil, fmt.Errorf("%w: %w", errFolderAbandoned, err)
		}

		if w.policy.MaxRetries > 0 && attempt >= w.policy.MaxRetries {
			return nil, fmt.Errorf("%w after %d retries: %w", errFolderAbandoned, attempt, err)
		}

		w.stats.ListingRetries++
		w.status.printf("  API error encountered: %v. Retrying in %s...\n", err, w.policy.Delay)
		w.logger.Warn("listing failed, retrying",
			slog.String("folder_id", folderID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", w.policy.Delay),
			slog.String("error", err.Error()),
		)

		if err := w.sleepFunc(ctx, w.policy.Delay); err != nil {
			return nil, err
		}
	}
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
