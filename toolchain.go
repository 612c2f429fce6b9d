package chainenv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/chainenv/internal/artifactcache"
	"github.com/giantswarm/chainenv/internal/core"
	"github.com/giantswarm/chainenv/internal/ethrpc"
	"github.com/giantswarm/chainenv/internal/fileutil"
	"github.com/giantswarm/chainenv/internal/ganache"
	"github.com/giantswarm/chainenv/internal/netutil"
	"github.com/giantswarm/chainenv/internal/project"
	"github.com/giantswarm/chainenv/internal/truffle"
)

// sharedAllocator issues ports and network ids to every registry created
// without WithBasePort.
var sharedAllocator = sync.OnceValue(func() *netutil.Allocator {
	return netutil.NewAllocator(DefaultBasePort)
})

// Compile-time interface satisfaction checks.
var (
	_ core.Stager         = fileStager{}
	_ core.ConfigLoader   = projectLoader{}
	_ core.NetworkStarter = (*ganacheNetwork)(nil)
	_ core.Server         = (*ganache.Server)(nil)
	_ core.Dialer         = rpcDialer{}
	_ core.Client         = (*ethrpc.Client)(nil)
	_ core.Compiler       = (*truffle.Tool)(nil)
	_ core.Deployer       = (*truffle.Tool)(nil)
	_ core.Compiler       = (*cachedCompiler)(nil)
)

type fileStager struct{}

func (fileStager) Copy(src, dst string) error { return fileutil.CopyPath(src, dst) }

type projectLoader struct{}

func (projectLoader) Load(dir string) (*project.Config, error) { return project.Load(dir) }

// ganacheNetwork adapts ganache.Launcher to core.NetworkStarter.
type ganacheNetwork struct {
	launcher *ganache.Launcher
}

func (n *ganacheNetwork) Start(ctx context.Context, cfg core.NetworkConfig) (core.Server, error) {
	srv, err := n.launcher.Launch(ctx, ganache.LaunchConfig{
		DataDir:                    cfg.DataDir,
		Port:                       cfg.Port,
		Seed:                       cfg.Seed,
		Accounts:                   cfg.Accounts,
		DefaultBalanceEther:        cfg.DefaultBalanceEther,
		GasLimit:                   cfg.GasLimit,
		AllowUnlimitedContractSize: cfg.AllowUnlimitedContractSize,
		LogSink:                    cfg.LogSink,
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// rpcDialer adapts ethrpc.Dial to core.Dialer. The caller's context carries
// the connect deadline; timeout only backs it up.
type rpcDialer struct {
	timeout time.Duration
}

func (d rpcDialer) Dial(ctx context.Context, endpoint string) (core.Client, error) {
	c, err := ethrpc.Dial(ctx, ethrpc.DialConfig{
		Endpoint: endpoint,
		Timeout:  d.timeout,
		Logger:   core.Logger(),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// cachedCompiler opens the artifact cache on first use so NewRegistry stays
// free of I/O. A failed open is retried by the next compile.
type cachedCompiler struct {
	dir  string
	next core.Compiler

	mu    sync.Mutex
	cache *artifactcache.Cache
}

func (c *cachedCompiler) open(ctx context.Context) (*artifactcache.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		return c.cache, nil
	}
	cache, err := artifactcache.Open(ctx, artifactcache.Config{
		Dir:      c.dir,
		Compiler: c.next,
		Logger:   core.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact cache: %w", err)
	}
	c.cache = cache
	return cache, nil
}

func (c *cachedCompiler) Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error) {
	cache, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	return cache.Compile(ctx, cfg)
}

func (c *cachedCompiler) stats() artifactcache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return artifactcache.Stats{}
	}
	return c.cache.Stats()
}

func (c *cachedCompiler) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return nil
	}
	err := c.cache.Close()
	c.cache = nil
	return err
}

// newToolchain wires the concrete collaborators for cfg. cache is nil unless
// an artifact cache directory is configured.
func newToolchain(cfg registryConfig) (tools core.Toolchain, cache *cachedCompiler) {
	log := core.Logger()
	tool := &truffle.Tool{Binary: cfg.TruffleBinary, Logger: log}

	var compiler core.Compiler = tool
	if cfg.ArtifactCacheDir != "" {
		cache = &cachedCompiler{dir: cfg.ArtifactCacheDir, next: tool}
		compiler = cache
	}

	tools = core.Toolchain{
		Stager: fileStager{},
		Loader: projectLoader{},
		Network: &ganacheNetwork{launcher: &ganache.Launcher{
			Binary:       cfg.GanacheBinary,
			ReadyTimeout: cfg.NetworkStartTimeout,
			StopTimeout:  cfg.StopTimeout,
			Logger:       log,
		}},
		Dialer:   rpcDialer{timeout: cfg.ConnectTimeout},
		Compiler: compiler,
		Deployer: tool,
	}
	return tools, cache
}
