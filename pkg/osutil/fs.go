// Package osutil holds the filesystem and process helpers shared by the
// catalog, builders, crawler and hooks.
package osutil

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// EnsureDir creates dir and its parents
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory followed by a rename. Readers see either the old or the new
// content, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsBinary reports whether data looks like binary content: a NUL byte in
// the first 512 bytes
func IsBinary(data []byte) bool {
	if len(data) > 512 {
		data = data[:512]
	}
	return bytes.IndexByte(data, 0) >= 0
}
