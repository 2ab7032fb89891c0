package mirror

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fallbackRootName names the local root when the remote root has no name.
const fallbackRootName = "Google_Drive_Folder_Download"

// LocalName turns a remote item name into a single safe path component.
// Names are NFC-normalized; path separators and NUL become "_"; names that
// would escape or alias the parent directory ("", ".", "..") become "_".
func LocalName(name string) string {
	name = norm.NFC.String(name)

	name = strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator || r == 0 {
			return '_'
		}

		return r
	}, name)

	switch name {
	case "", ".", "..":
		return "_"
	default:
		return name
	}
}

// rootDirName is LocalName with the fallback for an unnamed root.
func rootDirName(name string) string {
	if name == "" {
		return fallbackRootName
	}

	return LocalName(name)
}
