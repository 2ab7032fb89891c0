package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

// fakeNode is one item in the in-memory drive.
type fakeNode struct {
	item     gdrive.Item
	children []string
	content  []byte
}

// listCall records one ListChildren request.
type listCall struct {
	folderID string
	cursor   string
}

// fakeDrive is an in-memory Remote. Listing pages are pageSize items long
// and cursors are decimal offsets.
type fakeDrive struct {
	nodes    map[string]*fakeNode
	pageSize int

	listErrs    map[string][]error // per-folder queue, consumed front first
	getErrs     map[string]error
	openErrs    map[string]error
	exportMIMEs map[string]string

	listCalls []listCall
	getCalls  map[string]int
	opens     map[string]int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		nodes:       make(map[string]*fakeNode),
		pageSize:    100,
		listErrs:    make(map[string][]error),
		getErrs:     make(map[string]error),
		openErrs:    make(map[string]error),
		exportMIMEs: make(map[string]string),
		getCalls:    make(map[string]int),
		opens:       make(map[string]int),
	}
}

func (f *fakeDrive) add(parentID, id, name, mime string, content []byte) {
	f.nodes[id] = &fakeNode{item: gdrive.NewItem(id, name, mime), content: content}

	if parentID != "" {
		parent := f.nodes[parentID]
		parent.children = append(parent.children, id)
	}
}

func (f *fakeDrive) folder(parentID, id, name string) {
	f.add(parentID, id, name, gdrive.FolderMimeType, nil)
}

func (f *fakeDrive) file(parentID, id, name string, content []byte) {
	f.add(parentID, id, name, "application/octet-stream", content)
}

func (f *fakeDrive) native(parentID, id, name, kind string, exported []byte) {
	f.add(parentID, id, name, "application/vnd.google-apps."+kind, exported)
}

func (f *fakeDrive) ListChildren(_ context.Context, folderID, pageToken string) (*gdrive.Page, error) {
	f.listCalls = append(f.listCalls, listCall{folderID: folderID, cursor: pageToken})

	if queue := f.listErrs[folderID]; len(queue) > 0 {
		f.listErrs[folderID] = queue[1:]
		return nil, queue[0]
	}

	node, ok := f.nodes[folderID]
	if !ok {
		return nil, &gdrive.APIError{StatusCode: 404, Reason: "notFound", Err: gdrive.ErrNotFound}
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", pageToken)
		}

		start = n
	}

	end := min(start+f.pageSize, len(node.children))
	page := &gdrive.Page{}

	for _, id := range node.children[start:end] {
		page.Items = append(page.Items, f.nodes[id].item)
	}

	if end < len(node.children) {
		page.NextPageToken = strconv.Itoa(end)
	}

	return page, nil
}

func (f *fakeDrive) GetItem(_ context.Context, itemID string) (*gdrive.Item, error) {
	f.getCalls[itemID]++

	if err := f.getErrs[itemID]; err != nil {
		return nil, err
	}

	node, ok := f.nodes[itemID]
	if !ok {
		return nil, &gdrive.APIError{StatusCode: 404, Reason: "notFound", Err: gdrive.ErrNotFound}
	}

	item := node.item

	return &item, nil
}

func (f *fakeDrive) OpenContent(_ context.Context, itemID string) (io.ReadCloser, error) {
	f.opens[itemID]++

	if err := f.openErrs[itemID]; err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(f.nodes[itemID].content)), nil
}

func (f *fakeDrive) OpenExport(_ context.Context, itemID, mimeType string) (io.ReadCloser, error) {
	f.opens[itemID]++
	f.exportMIMEs[itemID] = mimeType

	if err := f.openErrs[itemID]; err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(f.nodes[itemID].content)), nil
}

// sleepRecorder captures durations passed to sleepFunc without waiting.
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newTestMirror builds a Mirror over drive writing under a fresh temp dir,
// with retry sleeps recorded instead of slept.
func newTestMirror(t *testing.T, drive *fakeDrive, rootID string) (*Mirror, *sleepRecorder, string) {
	t.Helper()

	dir := t.TempDir()
	rec := &sleepRecorder{}

	m := New(drive, Options{
		RootFolderID:  rootID,
		DownloadPath:  dir,
		ExportFormats: gdrive.DefaultExportFormats(),
		ChunkSize:     4096,
		Retry:         RetryPolicy{Delay: 5 * time.Second},
		Logger:        testLogger(t),
	})
	m.sleepFunc = rec.sleep

	return m, rec, dir
}

// snapshot returns every path under root (relative, slash-separated) with
// file contents; directories map to "/".
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			out[rel] = "/"
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		out[rel] = string(data)

		return nil
	})
	require.NoError(t, err)

	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// fmtLine renders a status line without its trailing newline.
func fmtLine(format string, args ...any) string {
	return strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
}
