package artifactcache

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// walkFiles returns all files under dirPath whose extension matches one of
// exts (case-insensitive), sorted for determinism.
func walkFiles(dirPath string, exts ...string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", dirPath, err)
	}
	slices.Sort(files)
	return files, nil
}
