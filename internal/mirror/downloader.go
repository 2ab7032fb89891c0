package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// errBecameFolder means an item listed as a file is a folder by the time its
// metadata is fetched. Its subtree is not mirrored in this run.
var errBecameFolder = errors.New("mirror: item is now a folder")

// Outcome is what happened to one non-folder item.
type Outcome int

const (
	OutcomeDownloaded Outcome = iota + 1
	OutcomeExported
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeExported:
		return "exported"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports the fate of one item. Path is the final local path when one
// was planned; Err is set only for OutcomeFailed.
type Result struct {
	Outcome Outcome
	Path    string
	Bytes   int64
	Err     error
}

const (
	partialSuffix    = ".partial"
	filePermissions  = 0o644
	defaultChunkSize = 1 << 20
)

// Downloader materializes a single non-folder item into a local directory.
// It never aborts the walk: every failure is folded into the Result.
type Downloader struct {
	remote    Fetcher
	formats   map[string]string
	chunkSize int
	logger    *slog.Logger
	status    Statusf
}

// NewDownloader creates a Downloader. formats maps native kinds (document,
// spreadsheet, ...) to export extensions; kinds missing from it are skipped.
func NewDownloader(remote Fetcher, formats map[string]string, chunkSize int, logger *slog.Logger, status Statusf) *Downloader {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &Downloader{
		remote:    remote,
		formats:   formats,
		chunkSize: chunkSize,
		logger:    logger,
		status:    status,
	}
}

// target is the planned local file for one item.
type target struct {
	path       string
	exportMIME string
}

// Download fetches the item's metadata to learn its type, then either exports
// it (native documents), skips it (unexportable native kinds), or copies its
// raw bytes. The local file is named after item.Name, the name from the
// listing, with the export extension appended for native documents.
func (d *Downloader) Download(ctx context.Context, item gdrive.Item, localDir string) Result {
	meta, err := d.remote.GetItem(ctx, item.ID)
	if err != nil {
		return d.fail(item, "", fmt.Errorf("fetching metadata: %w", err))
	}

	if meta.Kind == gdrive.KindFolder {
		return d.fail(item, "", errBecameFolder)
	}

	tgt, ok := d.plan(item, meta, localDir)
	if !ok {
		return Result{Outcome: OutcomeSkipped}
	}

	var (
		rc      io.ReadCloser
		outcome Outcome
	)

	if tgt.exportMIME != "" {
		d.status.printf("  Exporting %s as %s\n", item.Name, filepath.Base(tgt.path))
		rc, err = d.remote.OpenExport(ctx, item.ID, tgt.exportMIME)
		outcome = OutcomeExported
	} else {
		d.status.printf("  Downloading file: %s\n", item.Name)
		rc, err = d.remote.OpenContent(ctx, item.ID)
		outcome = OutcomeDownloaded
	}

	if err != nil {
		return d.fail(item, tgt.path, err)
	}
	defer rc.Close()

	n, err := d.writeFile(ctx, rc, tgt.path)
	if err != nil {
		return d.fail(item, tgt.path, err)
	}

	d.logger.Debug("item written",
		slog.String("item_id", item.ID),
		slog.String("path", tgt.path),
		slog.String("outcome", outcome.String()),
		slog.Int64("bytes", n),
	)

	return Result{Outcome: outcome, Path: tgt.path, Bytes: n}
}

// plan decides the local path and transfer kind. It returns false when the
// item is skipped.
func (d *Downloader) plan(item gdrive.Item, meta *gdrive.Item, localDir string) (target, bool) {
	name := LocalName(item.Name)

	switch meta.Kind {
	case gdrive.KindNative:
		ext, ok := d.formats[meta.NativeKind]
		if !ok {
			d.status.printf("  Skipping unhandled native Google file: %s\n", item.Name)
			d.logger.Info("skipping unexportable native item",
				slog.String("item_id", item.ID),
				slog.String("name", item.Name),
				slog.String("mime_type", meta.MimeType),
			)

			return target{}, false
		}

		mime, ok := gdrive.ExportMIMEType(ext)
		if !ok {
			d.logger.Warn("no export MIME type for extension",
				slog.String("item_id", item.ID),
				slog.String("ext", ext),
			)

			return target{}, false
		}

		return target{path: filepath.Join(localDir, name+"."+ext), exportMIME: mime}, true

	default:
		return target{path: filepath.Join(localDir, name)}, true
	}
}

// writeFile streams r into path via a .partial sibling and renames it into
// place. The partial file is removed on any failure.
func (d *Downloader) writeFile(ctx context.Context, r io.Reader, path string) (int64, error) {
	partialPath := path + partialSuffix

	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partialPath, err)
	}

	buf := make([]byte, d.chunkSize)

	// Wrapping both ends keeps io.CopyBuffer on buf instead of ReadFrom/WriteTo.
	n, copyErr := io.CopyBuffer(struct{ io.Writer }{f}, &ctxReader{ctx: ctx, r: r}, buf)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(partialPath)

		if copyErr != nil {
			return n, fmt.Errorf("writing %s: %w", partialPath, copyErr)
		}

		return n, fmt.Errorf("closing %s: %w", partialPath, closeErr)
	}

	if err := os.Rename(partialPath, path); err != nil {
		os.Remove(partialPath)
		return n, fmt.Errorf("renaming partial to %s: %w", path, err)
	}

	return n, nil
}

func (d *Downloader) fail(item gdrive.Item, path string, err error) Result {
	d.status.printf("  Error downloading %s: %v\n", item.Name, err)
	d.logger.Warn("item failed",
		slog.String("item_id", item.ID),
		slog.String("name", item.Name),
		slog.String("error", err.Error()),
	)

	return Result{Outcome: OutcomeFailed, Path: path, Err: err}
}

// ctxReader stops a long copy promptly once ctx is canceled.
type ctxReader struct {
	ctx context.Context //nolint:containedctx // scoped to one copy
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
