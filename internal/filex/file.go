// Package filex inspects local attachment files before they are queued.
package filex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// EnsureDir creates dir (and parents) if missing and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// Attachment is what the coordinator needs to know about a local file.
type Attachment struct {
	Path     string
	Name     string
	MimeType string
	Size     int64
}

// Inspect stats path and sniffs its content type. Directories are rejected.
func Inspect(path string) (*Attachment, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect mime %s: %w", path, err)
	}

	return &Attachment{
		Path:     path,
		Name:     filepath.Base(path),
		MimeType: mt.String(),
		Size:     fi.Size(),
	}, nil
}
