package artifactcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"slices"

	"github.com/giantswarm/chainenv/internal/project"
	"github.com/giantswarm/chainenv/internal/sentinel"
)

// ErrNoSources is returned when a project has no Solidity sources to hash.
const ErrNoSources = sentinel.Error("no solidity sources found")

// configFileName is hashed alongside the sources since compiler settings may
// live there.
const configFileName = "truffle-config.js"

// sourceHash computes a deterministic hash of the project's compile inputs:
// every .sol file under the contracts directory and under each import path
// (by relative path and content), the truffle config file when present, and
// the solc settings. Returns the first 16 hex characters (64 bits).
func sourceHash(cfg *project.Config) (string, error) {
	contractsDir := filepath.Join(cfg.Dir, cfg.ContractsDir)
	if _, err := os.Stat(contractsDir); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w in %s", ErrNoSources, contractsDir)
	}

	h := sha256.New()
	n, err := hashSources(h, contractsDir, contractsDir)
	if err != nil {
		return "", fmt.Errorf("hash contracts: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoSources, contractsDir)
	}

	imports := slices.Clone(cfg.ImportPaths)
	slices.Sort(imports)
	for _, rel := range imports {
		h.Write([]byte("import\x00" + filepath.ToSlash(rel) + "\x00"))
		if _, err := hashSources(h, filepath.Join(cfg.Dir, rel), cfg.Dir); err != nil {
			return "", fmt.Errorf("hash import %s: %w", rel, err)
		}
	}

	configContent, err := os.ReadFile(filepath.Join(cfg.Dir, configFileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return "", fmt.Errorf("read %s: %w", configFileName, err)
	default:
		h.Write([]byte(configFileName + "\x00"))
		h.Write(configContent)
		h.Write([]byte{0})
	}

	solc, err := json.Marshal(cfg.Solc)
	if err != nil {
		return "", fmt.Errorf("marshal solc settings: %w", err)
	}
	h.Write(solc)

	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// hashSources writes every .sol file under root into h, named by its path
// relative to base, and returns how many it wrote. root may be a single file.
func hashSources(h hash.Hash, root, base string) (int, error) {
	paths, err := walkFiles(root, ".sol")
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return 0, fmt.Errorf("read %s: %w", p, readErr)
		}
		relPath, relErr := filepath.Rel(base, p)
		if relErr != nil {
			return 0, fmt.Errorf("rel path: %w", relErr)
		}
		h.Write([]byte(filepath.ToSlash(relPath) + "\x00"))
		h.Write(content)
		h.Write([]byte{0}) // separator after content to prevent cross-file collisions
	}
	return len(paths), nil
}
