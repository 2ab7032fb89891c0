package gdrive

import (
	"fmt"
	"slices"
	"sort"
)

// exportMIMETypes maps a local file extension to the MIME type Drive's
// files.export endpoint accepts for it.
var exportMIMETypes = map[string]string{
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"odt":  "application/vnd.oasis.opendocument.text",
	"rtf":  "application/rtf",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"html": "text/html",
	"epub": "application/epub+zip",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ods":  "application/vnd.oasis.opendocument.spreadsheet",
	"csv":  "text/csv",
	"tsv":  "text/tab-separated-values",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odp":  "application/vnd.oasis.opendocument.presentation",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"svg":  "image/svg+xml",
}

// exportableAs lists, per native kind, the extensions Drive can export it to.
var exportableAs = map[string][]string{
	NativeDocument:     {"docx", "odt", "rtf", "pdf", "txt", "html", "epub"},
	NativeSpreadsheet:  {"xlsx", "ods", "csv", "tsv", "pdf"},
	NativePresentation: {"pptx", "odp", "pdf", "txt"},
	NativeDrawing:      {"png", "jpg", "svg", "pdf"},
}

// DefaultExportFormats is the extension chosen for each exportable native kind.
func DefaultExportFormats() map[string]string {
	return map[string]string{
		NativeDocument:     "docx",
		NativeSpreadsheet:  "xlsx",
		NativePresentation: "pptx",
		NativeDrawing:      "png",
	}
}

// ExportMIMEType returns the export MIME type for an extension.
func ExportMIMEType(ext string) (string, bool) {
	mime, ok := exportMIMETypes[ext]
	return mime, ok
}

// ExportableKinds returns the native kinds that can be exported, sorted.
func ExportableKinds() []string {
	kinds := make([]string, 0, len(exportableAs))
	for k := range exportableAs {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// ValidateExportFormat checks that kind is exportable and ext is one of
// the formats Drive offers for it.
func ValidateExportFormat(kind, ext string) error {
	allowed, ok := exportableAs[kind]
	if !ok {
		return fmt.Errorf("unknown native kind %q (valid: %v)", kind, ExportableKinds())
	}

	if slices.Contains(allowed, ext) {
		return nil
	}

	return fmt.Errorf("cannot export %s as %q (valid: %v)", kind, ext, allowed)
}
