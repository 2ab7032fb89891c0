package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

var (
	errUnavailable = &gdrive.APIError{StatusCode: 503, Message: "Service Unavailable", Err: gdrive.ErrServerError}
	errForbidden   = &gdrive.APIError{
		StatusCode: 403, Reason: "insufficientFilePermissions", Message: "no access", Err: gdrive.ErrForbidden,
	}
)

func TestRun_ReportsScenario(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Reports")
	drive.file("root", "q1", "Q1.pdf", []byte("%PDF-1.7 quarterly"))
	drive.native("root", "budget", "Budget", "spreadsheet", []byte("PK xlsx bytes"))

	m, rec, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		".":           "/",
		"Q1.pdf":      "%PDF-1.7 quarterly",
		"Budget.xlsx": "PK xlsx bytes",
	}, snapshot(t, filepath.Join(dir, "Reports")))

	xlsx, _ := gdrive.ExportMIMEType("xlsx")
	assert.Equal(t, xlsx, drive.exportMIMEs["budget"])

	assert.Equal(t, "Reports", summary.RootName)
	assert.Equal(t, filepath.Join(dir, "Reports"), summary.BasePath)
	assert.Equal(t, 1, summary.Folders)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.Exported)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, int64(len("%PDF-1.7 quarterly")+len("PK xlsx bytes")), summary.Bytes)
	assert.Empty(t, rec.calls)
}

func TestRun_DirectorySetEqualsFolderSet(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Top")
	drive.folder("root", "a", "A")
	drive.folder("a", "a1", "A1")
	drive.folder("a1", "a1x", "Deep")
	drive.folder("root", "b", "B")
	drive.folder("b", "empty", "Empty")
	drive.file("a1x", "f", "leaf.txt", []byte("leaf"))
	drive.native("b", "doc", "Notes", "document", []byte("docx"))
	drive.native("a", "slides", "Deck", "presentation", []byte("pptx"))
	drive.native("a", "draw", "Sketch", "drawing", []byte("png"))

	m, _, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		".":                  "/",
		"A":                  "/",
		"A/A1":               "/",
		"A/A1/Deep":          "/",
		"A/A1/Deep/leaf.txt": "leaf",
		"A/Deck.pptx":        "pptx",
		"A/Sketch.png":       "png",
		"B":                  "/",
		"B/Empty":            "/",
		"B/Notes.docx":       "docx",
	}, snapshot(t, filepath.Join(dir, "Top")))

	assert.Equal(t, 6, summary.Folders)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 3, summary.Exported)
}

func TestRun_UnknownNativeKindProducesNoFile(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.native("root", "form", "Survey", "form", nil)
	drive.native("root", "shortcut", "Link", "shortcut", nil)
	drive.file("root", "f", "keep.bin", []byte{0x00, 0xff})

	m, _, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{".", "keep.bin"}, sortedKeys(snapshot(t, filepath.Join(dir, "Root"))))
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, drive.opens["form"])
	assert.Zero(t, drive.opens["shortcut"])
}

func TestRun_Idempotent(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.folder("root", "sub", "Sub")
	drive.file("sub", "f", "data.csv", []byte("a,b\n1,2\n"))
	drive.native("root", "doc", "Plan", "document", []byte("plan"))

	m, _, dir := newTestMirror(t, drive, "root")

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	first := snapshot(t, dir)

	_, err = m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, snapshot(t, dir))
}

func TestRun_RerunOverwritesChangedContent(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.file("root", "f", "a.txt", []byte("new contents"))

	m, _, dir := newTestMirror(t, drive, "root")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Root"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Root", "a.txt"), []byte("stale and longer contents"), 0o644))

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "Root", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
}

func TestRun_PaginationVisitsEveryChildOnce(t *testing.T) {
	drive := newFakeDrive()
	drive.pageSize = 2
	drive.folder("", "root", "Root")

	for _, id := range []string{"f1", "f2", "f3", "f4", "f5"} {
		drive.file("root", id, id+".txt", []byte(id))
	}

	m, _, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []listCall{
		{folderID: "root", cursor: ""},
		{folderID: "root", cursor: "2"},
		{folderID: "root", cursor: "4"},
	}, drive.listCalls)

	for _, id := range []string{"f1", "f2", "f3", "f4", "f5"} {
		assert.Equal(t, 1, drive.getCalls[id], id)
		assert.Equal(t, 1, drive.opens[id], id)
	}

	assert.Len(t, snapshot(t, filepath.Join(dir, "Root")), 6)
	assert.Equal(t, 5, summary.Downloaded)
}

func TestRun_SingleTransientListingFailure(t *testing.T) {
	drive := newFakeDrive()
	drive.pageSize = 1
	drive.folder("", "root", "Root")
	drive.file("root", "f1", "one.txt", []byte("1"))
	drive.file("root", "f2", "two.txt", []byte("2"))
	drive.listErrs["root"] = []error{errUnavailable}

	m, rec, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second}, rec.calls)
	assert.Equal(t, 1, summary.ListingRetries)
	assert.Equal(t, []listCall{
		{folderID: "root", cursor: ""},
		{folderID: "root", cursor: ""},
		{folderID: "root", cursor: "1"},
	}, drive.listCalls)

	assert.Equal(t, 1, drive.getCalls["f1"], "no duplicate processing")
	assert.Equal(t, 1, drive.getCalls["f2"])
	assert.Equal(t, map[string]string{".": "/", "one.txt": "1", "two.txt": "2"},
		snapshot(t, filepath.Join(dir, "Root")))
}

func TestRun_TransientFailureMidPaginationRetriesSameCursor(t *testing.T) {
	drive := newFakeDrive()
	drive.pageSize = 1
	drive.folder("", "root", "Root")
	drive.file("root", "f1", "one.txt", []byte("1"))
	drive.file("root", "f2", "two.txt", []byte("2"))

	m, rec, _ := newTestMirror(t, drive, "root")

	// Fail the second page request once.
	m.remote = &failOnCursor{fakeDrive: drive, cursor: "1", err: errors.New("connection reset by peer")}

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rec.calls, 1)
	assert.Equal(t, []listCall{
		{folderID: "root", cursor: ""},
		{folderID: "root", cursor: "1"},
		{folderID: "root", cursor: "1"},
	}, drive.listCalls)
	assert.Equal(t, 1, drive.getCalls["f2"])
}

// failOnCursor fails the first ListChildren call carrying cursor.
type failOnCursor struct {
	*fakeDrive
	cursor string
	err    error
	done   bool
}

func (f *failOnCursor) ListChildren(ctx context.Context, folderID, pageToken string) (*gdrive.Page, error) {
	if !f.done && pageToken == f.cursor {
		f.done = true
		f.listCalls = append(f.listCalls, listCall{folderID: folderID, cursor: pageToken})

		return nil, f.err
	}

	return f.fakeDrive.ListChildren(ctx, folderID, pageToken)
}

func TestRun_PermanentListingErrorAbandonsFolder(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.folder("root", "locked", "Locked")
	drive.file("locked", "secret", "secret.txt", []byte("s"))
	drive.folder("root", "open", "Open")
	drive.file("open", "pub", "public.txt", []byte("p"))
	drive.listErrs["locked"] = []error{errForbidden}

	m, rec, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rec.calls, "permanent errors are not retried")
	assert.Equal(t, 1, summary.AbandonedFolders)
	assert.Zero(t, drive.getCalls["secret"])

	snap := snapshot(t, filepath.Join(dir, "Root"))
	assert.Equal(t, "/", snap["Locked"], "directory exists even when listing fails")
	assert.Equal(t, "p", snap["Open/public.txt"])
}

func TestRun_RetryAllErrorsRetriesPermanentErrors(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.file("root", "f", "a.txt", []byte("a"))
	drive.listErrs["root"] = []error{errForbidden, errForbidden}

	m, rec, dir := newTestMirror(t, drive, "root")
	m.opts.Retry.RetryAll = true

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.calls)
	assert.Equal(t, 2, summary.ListingRetries)
	assert.Zero(t, summary.AbandonedFolders)
	assert.Equal(t, "a", snapshot(t, filepath.Join(dir, "Root"))["a.txt"])
}

func TestRun_MaxRetriesAbandonsFolder(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.listErrs["root"] = []error{errUnavailable, errUnavailable, errUnavailable, errUnavailable}

	m, rec, _ := newTestMirror(t, drive, "root")
	m.opts.Retry.MaxRetries = 2

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rec.calls, 2)
	assert.Len(t, drive.listCalls, 3)
	assert.Equal(t, 1, summary.AbandonedFolders)
}

func TestRun_CancelDuringRetrySleep(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.listErrs["root"] = []error{errUnavailable}

	m, _, _ := newTestMirror(t, drive, "root")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, drive.listCalls, 1)
}

func TestRun_BasePathBlockedIsFatal(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.file("root", "g", "b.txt", []byte("b"))

	m, _, dir := newTestMirror(t, drive, "root")

	// A regular file where the root's directory must go.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Root"), []byte("in the way"), 0o644))

	_, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating directory")
	assert.Empty(t, drive.listCalls)
}

func TestRun_BlockedSubfolderIsAbandoned(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.folder("root", "sub", "Sub")
	drive.file("sub", "f", "a.txt", []byte("a"))
	drive.folder("root", "other", "Other")
	drive.file("other", "o", "o.txt", []byte("o"))

	m, _, dir := newTestMirror(t, drive, "root")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Root"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Root", "Sub"), []byte("in the way"), 0o644))

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AbandonedFolders)
	assert.Zero(t, drive.getCalls["f"])

	assert.Equal(t, map[string]string{
		".":           "/",
		"Sub":         "in the way",
		"Other":       "/",
		"Other/o.txt": "o",
	}, snapshot(t, filepath.Join(dir, "Root")))
}

func TestRun_FileAndFolderShareName(t *testing.T) {
	t.Run("folder listed first", func(t *testing.T) {
		drive := newFakeDrive()
		drive.folder("", "root", "Root")
		drive.folder("root", "notes-dir", "Notes")
		drive.file("notes-dir", "n", "n.txt", []byte("n"))
		drive.file("root", "notes-file", "Notes", []byte("file"))
		drive.folder("root", "other", "Other")
		drive.file("other", "o", "o.txt", []byte("o"))

		m, _, dir := newTestMirror(t, drive, "root")

		summary, err := m.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed, "the file loses to the directory")
		assert.Zero(t, summary.AbandonedFolders)

		assert.Equal(t, map[string]string{
			".":           "/",
			"Notes":       "/",
			"Notes/n.txt": "n",
			"Other":       "/",
			"Other/o.txt": "o",
		}, snapshot(t, filepath.Join(dir, "Root")))
	})

	t.Run("file listed first", func(t *testing.T) {
		drive := newFakeDrive()
		drive.folder("", "root", "Root")
		drive.file("root", "notes-file", "Notes", []byte("file"))
		drive.folder("root", "notes-dir", "Notes")
		drive.file("notes-dir", "n", "n.txt", []byte("n"))
		drive.folder("root", "other", "Other")
		drive.file("other", "o", "o.txt", []byte("o"))

		m, _, dir := newTestMirror(t, drive, "root")

		summary, err := m.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.AbandonedFolders, "the folder loses to the file")
		assert.Zero(t, drive.getCalls["n"])

		assert.Equal(t, map[string]string{
			".":           "/",
			"Notes":       "file",
			"Other":       "/",
			"Other/o.txt": "o",
		}, snapshot(t, filepath.Join(dir, "Root")))
	})
}

func TestRun_RevokedTokenStopsRun(t *testing.T) {
	revoked := fmt.Errorf("gdrive: obtaining token: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"})

	t.Run("during listing", func(t *testing.T) {
		drive := newFakeDrive()
		drive.folder("", "root", "Root")
		drive.folder("root", "sub", "Sub")
		drive.listErrs["sub"] = []error{revoked}

		m, rec, _ := newTestMirror(t, drive, "root")
		m.opts.Retry.RetryAll = true

		_, err := m.Run(context.Background())
		require.Error(t, err)
		assert.True(t, gdrive.IsAuthFailure(err))
		assert.Empty(t, rec.calls, "no retry sleep")
	})

	t.Run("during download", func(t *testing.T) {
		drive := newFakeDrive()
		drive.folder("", "root", "Root")
		drive.file("root", "a", "a.txt", []byte("a"))
		drive.file("root", "b", "b.txt", []byte("b"))
		drive.getErrs["a"] = revoked

		m, _, _ := newTestMirror(t, drive, "root")

		summary, err := m.Run(context.Background())
		require.Error(t, err)
		assert.True(t, gdrive.IsAuthFailure(err))
		assert.Equal(t, 1, summary.Failed)
		assert.Zero(t, drive.getCalls["b"])
	})
}

func TestRun_PerItemFailureContinues(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.file("root", "bad", "bad.bin", []byte("never"))
	drive.native("root", "badmeta", "Broken", "document", nil)
	drive.file("root", "good", "good.bin", []byte("ok"))
	drive.openErrs["bad"] = &gdrive.APIError{StatusCode: 403, Reason: "cannotDownloadFile", Err: gdrive.ErrForbidden}
	drive.getErrs["badmeta"] = errUnavailable

	m, _, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, map[string]string{".": "/", "good.bin": "ok"}, snapshot(t, filepath.Join(dir, "Root")))
}

func TestRun_InvalidRoot(t *testing.T) {
	drive := newFakeDrive()

	m, _, _ := newTestMirror(t, drive, "missing")

	_, err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrInvalidRoot)
	assert.ErrorIs(t, err, gdrive.ErrNotFound)
	assert.Empty(t, drive.listCalls)
}

func TestRun_RootNotFolder(t *testing.T) {
	drive := newFakeDrive()
	drive.file("", "f", "report.pdf", []byte("x"))

	m, _, dir := newTestMirror(t, drive, "f")

	_, err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrRootNotFolder)
	assert.Equal(t, map[string]string{".": "/"}, snapshot(t, dir), "nothing is created")
}

func TestRun_UnnamedRootUsesFallback(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "")
	drive.file("root", "f", "a.txt", []byte("a"))

	m, _, dir := newTestMirror(t, drive, "root")

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Google_Drive_Folder_Download", summary.RootName)
	assert.FileExists(t, filepath.Join(dir, "Google_Drive_Folder_Download", "a.txt"))
}

func TestRun_SubfoldersVisitedInListingOrder(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.folder("root", "c", "C")
	drive.folder("root", "a", "A")
	drive.folder("a", "a2", "A2")
	drive.folder("root", "b", "B")

	m, _, _ := newTestMirror(t, drive, "root")

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	var order []string
	for _, c := range drive.listCalls {
		order = append(order, c.folderID)
	}

	assert.Equal(t, []string{"root", "c", "a", "a2", "b"}, order)
}

func TestRun_UnsafeNamesStayInsideParent(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Root")
	drive.folder("root", "dots", "..")
	drive.file("dots", "f", "a/b.txt", []byte("x"))

	m, _, dir := newTestMirror(t, drive, "root")

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{".": "/", "_": "/", "_/a_b.txt": "x"},
		snapshot(t, filepath.Join(dir, "Root")))
}

func TestRun_StatusLines(t *testing.T) {
	drive := newFakeDrive()
	drive.folder("", "root", "Reports")
	drive.folder("root", "sub", "Archive")
	drive.file("root", "q1", "Q1.pdf", []byte("pdf"))
	drive.native("root", "budget", "Budget", "spreadsheet", []byte("xlsx"))
	drive.native("root", "form", "Survey", "form", nil)

	m, _, _ := newTestMirror(t, drive, "root")

	var lines []string
	m.opts.Status = func(format string, args ...any) {
		lines = append(lines, fmtLine(format, args...))
	}

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Downloading folder 'Reports'...",
		"  Downloading file: Q1.pdf",
		"  Exporting Budget as Budget.xlsx",
		"  Skipping unhandled native Google file: Survey",
		"Entering folder: Archive",
	}, lines)
}
