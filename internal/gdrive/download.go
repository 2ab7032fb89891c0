package gdrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// OpenContent starts a raw byte transfer of a regular file's stored
// content (files.get with alt=media). The caller must close the reader.
func (c *Client) OpenContent(ctx context.Context, itemID string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("opening content", slog.String("item_id", itemID))

	resp, err := c.svc.Files.Get(itemID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("gdrive: downloading %s: %w", itemID, classify(err))
	}

	return resp.Body, nil
}

// OpenExport starts a format-conversion transfer of a Google-native
// document into mimeType. The caller must close the reader.
func (c *Client) OpenExport(ctx context.Context, itemID, mimeType string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("opening export",
		slog.String("item_id", itemID),
		slog.String("mime_type", mimeType),
	)

	resp, err := c.svc.Files.Export(itemID, mimeType).
		Context(ctx).
		Download()
	if err != nil {
		return nil, fmt.Errorf("gdrive: exporting %s as %s: %w", itemID, mimeType, classify(err))
	}

	return resp.Body, nil
}
