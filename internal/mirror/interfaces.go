// Package mirror copies a Google Drive folder tree to the local filesystem:
// folders become directories, Google-native documents are exported, and all
// other files are downloaded byte-for-byte. Remote access goes through the
// narrow interfaces below so tests can substitute an in-memory drive.
package mirror

import (
	"context"
	"io"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// Lister lists one page of a folder's children. Satisfied by *gdrive.Client.
type Lister interface {
	ListChildren(ctx context.Context, folderID, pageToken string) (*gdrive.Page, error)
}

// Fetcher reads item metadata and content. Satisfied by *gdrive.Client.
type Fetcher interface {
	GetItem(ctx context.Context, itemID string) (*gdrive.Item, error)
	OpenContent(ctx context.Context, itemID string) (io.ReadCloser, error)
	OpenExport(ctx context.Context, itemID, mimeType string) (io.ReadCloser, error)
}

// Remote is everything a mirror run needs from the drive.
type Remote interface {
	Lister
	Fetcher
}

// Statusf prints a human-readable progress line. The CLI routes it to
// stderr; tests and library callers may leave it nil.
type Statusf func(format string, args ...any)

func (s Statusf) printf(format string, args ...any) {
	if s != nil {
		s(format, args...)
	}
}
