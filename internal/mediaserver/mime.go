package mediaserver

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
)

// MimeFromFile sniffs the media type of the file at path. Unknown content
// falls back to the file extension.
func MimeFromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("MimeFromFile: %w", err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("MimeFromFile read error: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return "", fmt.Errorf("MimeFromFile match error: %w", err)
	}
	if kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}
	return "", fmt.Errorf("MimeFromFile: unknown media type for %s", filepath.Base(path))
}
