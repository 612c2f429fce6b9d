package fileutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/giantswarm/chainenv/internal/sentinel"
)

// ErrEmptySrc is returned when a source path is empty.
const ErrEmptySrc = sentinel.Error("source path must not be empty")

// ErrEmptyDst is returned when a destination path is empty.
const ErrEmptyDst = sentinel.Error("destination path must not be empty")

// CopyFile copies a regular file from src to dst, creating parent directories
// as needed. dst is created with mode; an existing dst is truncated.
func CopyFile(src, dst string, mode fs.FileMode) (retErr error) {
	if src == "" {
		return ErrEmptySrc
	}
	if dst == "" {
		return ErrEmptyDst
	}
	if err := EnsureDirForFile(dst); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}

	srcFile, err := os.Open(src) //nolint:gosec // G304: paths come from the caller's project layout
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if closeErr := srcFile.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close source: %w", closeErr)
		}
	}()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) //nolint:gosec // G304: see above
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// CopyPath copies src to dst. A regular file is copied as a file; a directory
// is copied recursively, keeping file modes. Symlinks inside a directory tree
// are resolved and their targets copied, so the workspace never points back
// into the source project.
func CopyPath(src, dst string) error {
	if src == "" {
		return ErrEmptySrc
	}
	if dst == "" {
		return ErrEmptyDst
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return CopyFile(src, dst, info.Mode().Perm())
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		target := filepath.Join(dst, rel)

		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.IsDir() {
			if d.Type()&fs.ModeSymlink != 0 {
				return CopyPath(path, target)
			}
			return EnsureDir(target)
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		return CopyFile(path, target, fi.Mode().Perm())
	})
}
