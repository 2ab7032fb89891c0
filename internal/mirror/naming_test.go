package mirror

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func TestLocalName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Q1.pdf", "Q1.pdf"},
		{"Budget 2024", "Budget 2024"},
		{"a/b", "a_b"},
		{"nul\x00byte", "nul_byte"},
		{"", "_"},
		{".", "_"},
		{"..", "_"},
		{"...", "..."},
		{".hidden", ".hidden"},
		{"cafe\u0301", "caf\u00e9"},
		{"日本語", "日本語"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalName(tt.in))
		})
	}
}

func TestRootDirName(t *testing.T) {
	assert.Equal(t, "Google_Drive_Folder_Download", rootDirName(""))
	assert.Equal(t, "Reports", rootDirName("Reports"))
	assert.Equal(t, "_", rootDirName(".."))
}
