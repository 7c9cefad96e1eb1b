// Package storage defines the FileStore interface for reading and writing
// whole files, with a local-directory and an S3 implementation.
//
// The session file backend keeps one JSON record per user in a FileStore;
// the file tools use a second FileStore as their workspace.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidPath is returned for paths that are absolute or escape the
// store root.
var ErrInvalidPath = errors.New("storage: invalid path")

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. Parent directories are
	// created automatically. The new content replaces the old one only
	// when Close returns nil; readers never observe a partial file.
	Write(ctx context.Context, path string) (io.WriteCloser, error)
}

// cleanPath validates p and returns its canonical form.
func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}
