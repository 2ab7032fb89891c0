package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/googleapi"
)

// Partial-response field masks. Asking only for what the mirror needs keeps
// listing responses small.
const (
	listFields googleapi.Field = "nextPageToken, files(id, name, mimeType)"
	itemFields googleapi.Field = "id, name, mimeType"
)

// childrenQuery returns the files.list query selecting the non-trashed
// direct children of folderID.
func childrenQuery(folderID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)

	return fmt.Sprintf("'%s' in parents and trashed=false", escaped)
}

// ListChildren fetches one page of the non-trashed children of folderID.
// Pass an empty pageToken for the first page.
func (c *Client) ListChildren(ctx context.Context, folderID, pageToken string) (*Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	call := c.svc.Files.List().
		Q(childrenQuery(folderID)).
		PageSize(c.pageSize).
		Fields(listFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	fl, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("gdrive: listing children of %s: %w", folderID, classify(err))
	}

	page := &Page{
		Items:         make([]Item, 0, len(fl.Files)),
		NextPageToken: fl.NextPageToken,
	}

	for _, f := range fl.Files {
		if f == nil {
			continue
		}

		page.Items = append(page.Items, NewItem(f.Id, f.Name, f.MimeType))
	}

	c.logger.Debug("fetched children page",
		slog.String("folder_id", folderID),
		slog.Int("count", len(page.Items)),
		slog.Bool("more", page.NextPageToken != ""),
	)

	return page, nil
}

// GetItem retrieves the metadata of a single item by ID.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.logger.Debug("getting item", slog.String("item_id", itemID))

	f, err := c.svc.Files.Get(itemID).
		Fields(itemFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gdrive: getting item %s: %w", itemID, classify(err))
	}

	item := NewItem(f.Id, f.Name, f.MimeType)

	return &item, nil
}
