package gdrive

import "strings"

// Google-native MIME types all share this prefix.
const (
	nativePrefix   = "application/vnd.google-apps."
	FolderMimeType = nativePrefix + "folder"
)

// Native kinds with a default export format.
const (
	NativeDocument     = "document"
	NativeSpreadsheet  = "spreadsheet"
	NativePresentation = "presentation"
	NativeDrawing      = "drawing"
)

// Kind classifies a remote item.
type Kind int

const (
	KindFile   Kind = iota // stored bytes, downloaded as is
	KindFolder             // container, mirrored as a directory
	KindNative             // Google-native document, must be exported
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindNative:
		return "native"
	default:
		return "file"
	}
}

// Item is a Drive file or folder. Fields are normalized from the API
// response; callers never see raw API data.
type Item struct {
	ID       string
	Name     string
	MimeType string
	Kind     Kind
	// NativeKind is the MIME suffix after "application/vnd.google-apps."
	// for KindNative items (e.g. "document"); empty otherwise.
	NativeKind string
}

// ClassifyMimeType decodes a MIME type into its kind and, for native
// documents, the native kind.
func ClassifyMimeType(mimeType string) (Kind, string) {
	if mimeType == FolderMimeType {
		return KindFolder, ""
	}

	if rest, ok := strings.CutPrefix(mimeType, nativePrefix); ok {
		return KindNative, rest
	}

	return KindFile, ""
}

// NewItem builds an Item from raw metadata.
func NewItem(id, name, mimeType string) Item {
	kind, native := ClassifyMimeType(mimeType)

	return Item{
		ID:         id,
		Name:       name,
		MimeType:   mimeType,
		Kind:       kind,
		NativeKind: native,
	}
}

// Page is one page of a folder listing. NextPageToken is empty on the last page.
type Page struct {
	Items         []Item
	NextPageToken string
}
