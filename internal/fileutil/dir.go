// Package fileutil stages project files into per-instance workspaces.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates path and any missing parents with mode 0755.
// It returns nil if the directory already exists.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// EnsureDirForFile creates the parent directory of filePath.
func EnsureDirForFile(filePath string) error {
	if err := EnsureDir(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", filePath, err)
	}
	return nil
}

// Exists reports whether path exists. Errors other than "not exist" are
// returned so callers do not mistake a permission problem for absence.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
