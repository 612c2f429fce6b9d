package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/giantswarm/chainenv/internal/fileutil"
	"github.com/giantswarm/chainenv/internal/project"
)

// dbFileName is the SQLite database inside the cache directory.
const dbFileName = "artifacts.db"

// Compiler produces artifacts for a project. The cache wraps one.
type Compiler interface {
	Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error)
}

// Config holds configuration for a Cache.
type Config struct {
	Dir      string       // Directory holding the database and lock files
	Compiler Compiler     // Compiler invoked on cache misses
	Logger   *slog.Logger // Logger for operational messages (nil uses slog.Default)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) validate() error {
	var errs []error
	if c.Dir == "" {
		errs = append(errs, errors.New("cache dir must not be empty"))
	}
	if c.Compiler == nil {
		errs = append(errs, errors.New("compiler must not be nil"))
	}
	return errors.Join(errs...)
}

// Stats counts cache outcomes since Open.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache is a Compiler that serves repeated builds of identical sources from
// disk. It is safe for concurrent use.
type Cache struct {
	cfg    Config
	store  *store
	hits   atomic.Int64
	misses atomic.Int64
}

// Open creates the cache directory if needed and opens its database.
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := fileutil.EnsureDir(cfg.Dir); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	st, err := openStore(ctx, filepath.Join(cfg.Dir, dbFileName))
	if err != nil {
		return nil, err
	}
	return &Cache{cfg: cfg, store: st}, nil
}

// Compile returns the artifacts for cfg, compiling only when no build with the
// same source hash is cached. Projects without Solidity sources bypass the
// cache.
func (c *Cache) Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error) {
	logger := c.cfg.logger()

	hash, err := sourceHash(cfg)
	if errors.Is(err, ErrNoSources) {
		logger.Debug("artifact cache bypassed", "reason", err)
		return c.cfg.Compiler.Compile(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("compute source hash: %w", err)
	}

	if artifacts, ok, err := c.restore(ctx, cfg, hash); err != nil || ok {
		return artifacts, err
	}

	// Serialize builds of the same sources across processes.
	lockPath := filepath.Join(c.cfg.Dir, "build-"+hash+".lock")
	logger.Debug("acquiring build lock", "lock_path", lockPath)
	lock, err := acquireFileLock(ctx, lockPath)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer releaseFileLock(logger, lock)

	// Another process may have stored the build while we waited.
	if artifacts, ok, err := c.restore(ctx, cfg, hash); err != nil || ok {
		return artifacts, err
	}

	c.misses.Add(1)
	start := time.Now()
	artifacts, err := c.cfg.Compiler.Compile(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := readBuildFiles(cfg.BuildPath())
	if err != nil {
		return nil, err
	}
	if err := c.store.save(ctx, hash, files); err != nil {
		// The build itself succeeded; a later sandbox simply recompiles.
		logger.Warn("failed to store compiled artifacts", "hash", hash, "error", err)
		return artifacts, nil
	}
	logger.Info("artifact cache populated", "hash", hash, "files", len(files),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return artifacts, nil
}

// restore writes a cached build into the project's build directory and decodes
// it. ok is false on a cache miss.
func (c *Cache) restore(ctx context.Context, cfg *project.Config, hash string) (map[string]project.Artifact, bool, error) {
	files, ok, err := c.store.lookup(ctx, hash)
	if err != nil || !ok {
		return nil, false, err
	}

	buildDir := cfg.BuildPath()
	if err := fileutil.EnsureDir(buildDir); err != nil {
		return nil, false, fmt.Errorf("create build dir: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(buildDir, f.name), f.body, 0o600); err != nil {
			return nil, false, fmt.Errorf("restore %s: %w", f.name, err)
		}
	}
	artifacts, err := project.ReadArtifacts(buildDir)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached artifacts: %w", err)
	}

	c.hits.Add(1)
	c.cfg.logger().Info("using cached artifacts", "hash", hash, "files", len(files))
	return artifacts, true, nil
}

// readBuildFiles reads the top-level JSON files of dir.
func readBuildFiles(dir string) ([]buildFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read build dir: %w", err)
	}
	files := make([]buildFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		files = append(files, buildFile{name: e.Name(), body: body})
	}
	return files, nil
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close closes the database.
func (c *Cache) Close() error {
	if err := c.store.close(); err != nil {
		return fmt.Errorf("close artifact cache: %w", err)
	}
	return nil
}
