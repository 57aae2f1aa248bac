package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// RegularFileSize returns the size of a regular file. Directories and other
// non-regular entries report os.ErrNotExist so callers treat them as absent.
func RegularFileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return fi.Size(), nil
}

// IsNotExist reports whether err means the path is absent.
func IsNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }

// TempFile is a scoped temporary file. Release removes it and is safe to call
// more than once.
type TempFile struct {
	Path     string
	released bool
}

// WriteTemp writes content to a new temporary file in dir (os.TempDir when
// empty) and returns a handle whose Release must be deferred by the caller.
func WriteTemp(dir, pattern, content string) (*TempFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	tf := &TempFile{Path: f.Name()}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = tf.Release()
		return nil, fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = tf.Release()
		return nil, fmt.Errorf("close temp: %w", err)
	}
	return tf, nil
}

// Release removes the file. A file that is already gone is not an error.
func (t *TempFile) Release() error {
	if t == nil || t.released {
		return nil
	}
	t.released = true
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
