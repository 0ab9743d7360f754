// Package extract turns a source file into plain text for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrUnsupported = errors.New("unsupported file type")

var supported = map[string]bool{".pdf": true, ".txt": true, ".md": true}

// Supported reports whether name has an extension File can read.
func Supported(name string) bool {
	return supported[strings.ToLower(filepath.Ext(name))]
}

// File dispatches on the file extension.
func File(path string, m Margins) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return PDF(path, m)
	case ".txt", ".md":
		return Text(path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// Text reads a UTF-8 text or markdown file, dropping a leading byte order
// mark and any NUL bytes.
func Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8", filepath.Base(path))
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ReplaceAll(text, "\x00", ""), nil
}
