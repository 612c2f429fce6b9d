package chainenv

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/giantswarm/chainenv/internal/core"
	"github.com/giantswarm/chainenv/internal/netutil"
	"github.com/giantswarm/chainenv/internal/project"
)

// Compile-time interface satisfaction check.
var _ Sandbox = (*sandboxWrapper)(nil)

// Artifact is the compiled output of one contract.
type Artifact = project.Artifact

// Server describes the network backing a sandbox.
type Server struct {
	Endpoint string // websocket JSON-RPC endpoint, e.g. ws://127.0.0.1:1111
	Port     int
}

// Sandbox is one isolated contract test environment: a private ganache
// network with the project's contracts compiled and migrated onto it.
//
// Sandboxes initialize in the background. Every context-taking accessor
// blocks until its value is available, the sandbox fails, the attribute
// timeout elapses (*AttributeTimeoutError), or ctx is done. Once the sandbox
// has failed, every value it had not produced yet returns the same
// *StageError; values produced earlier stay readable.
type Sandbox interface {
	// Network returns the sandbox's unique network id. It never blocks.
	Network() string
	// Port returns the network's listen port.
	Port() int
	// Workspace returns the directory the project was staged into.
	Workspace() string

	// IsInitializing reports whether initialization is still running.
	IsInitializing() bool
	// Done is closed once initialization finishes, successfully or not.
	Done() <-chan struct{}
	// Err returns the initialization error after Done is closed.
	Err() error
	// Wait blocks until initialization finishes and returns its error.
	Wait(ctx context.Context) error

	Server(ctx context.Context) (Server, error)
	// Client returns an RPC client attached to the network. It is owned by
	// the sandbox and closed by Close.
	Client(ctx context.Context) (*ethclient.Client, error)
	// Contracts returns the compiled artifacts keyed by contract name.
	Contracts(ctx context.Context) (map[string]Artifact, error)
	// Addresses returns the deployed addresses of the contracts named with
	// WithExtract, keyed by name.
	Addresses(ctx context.Context) (map[string]string, error)
	// Publisher returns the default transaction sender, the first account.
	Publisher(ctx context.Context) (string, error)
	Accounts(ctx context.Context) ([]string, error)
	// NetworkID returns the network id reported by the node.
	NetworkID(ctx context.Context) (uint64, error)

	// Close waits for initialization to finish (bounded by ctx), then
	// releases the sandbox. The network process is stopped once every
	// sandbox of the registry has been closed. Safe to call more than once;
	// a call that gave up because ctx was done may be retried.
	Close(ctx context.Context) error
}

// Registry creates sandboxes and owns the shutdown barrier shared by them.
// A Registry is safe for concurrent use.
type Registry struct {
	reg   *core.Registry
	cfg   registryConfig
	tools core.Toolchain
	cache *cachedCompiler
}

// NewRegistry creates a Registry. This performs no I/O.
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	tools, cache := newToolchain(cfg)
	return newRegistry(cfg, tools, cache)
}

func newRegistry(cfg registryConfig, tools core.Toolchain, cache *cachedCompiler) *Registry {
	alloc := sharedAllocator()
	if cfg.BasePort != 0 {
		alloc = netutil.NewAllocator(cfg.BasePort)
	}
	return &Registry{
		reg: core.NewRegistry(core.RegistryConfig{
			MaxInstances: cfg.MaxInstances,
			Allocator:    alloc,
		}),
		cfg:   cfg,
		tools: tools,
		cache: cache,
	}
}

// New creates a sandbox and starts initializing it in the background. It
// returns ErrCapacityExceeded, without doing any work, when the registry
// already holds its maximum number of open sandboxes.
//
// Panics if any option receives an invalid value.
//
//nolint:ireturn // Returns Sandbox interface for testability (mockable).
func (r *Registry) New(opts ...SandboxOption) (Sandbox, error) {
	cfg := r.cfg.defaultSandboxConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	inst, err := r.reg.NewInstance(cfg.InstanceConfig, r.tools)
	if err != nil {
		return nil, err
	}
	return &sandboxWrapper{inst: inst}, nil
}

// Stats is a snapshot of registry state.
type Stats struct {
	Open        int   // sandboxes created and not yet closed
	Networks    int   // networks started
	Running     int   // started networks not yet released
	CacheHits   int64 // compiles served from the artifact cache
	CacheMisses int64 // compiles that ran the compiler
}

// Stats returns a snapshot of the registry state.
func (r *Registry) Stats() Stats {
	s := r.reg.Stats()
	out := Stats{
		Open:     s.Reserved,
		Networks: s.Networks,
		Running:  s.Networks - s.Released,
	}
	if r.cache != nil {
		cs := r.cache.stats()
		out.CacheHits, out.CacheMisses = cs.Hits, cs.Misses
	}
	return out
}

// Close releases registry-wide resources such as the artifact cache
// database. Call it after every sandbox has been closed; networks are
// released by Sandbox.Close, not here.
func (r *Registry) Close() error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.close(); err != nil {
		return fmt.Errorf("close artifact cache: %w", err)
	}
	return nil
}

// sandboxWrapper wraps core.Instance to implement the Sandbox interface.
//
// The core.Instance is stored as a named (unexported) field rather than
// embedded so callers cannot reach internal methods through type assertions.
type sandboxWrapper struct {
	inst *core.Instance
}

func (w *sandboxWrapper) Network() string                { return w.inst.Network() }
func (w *sandboxWrapper) Port() int                      { return w.inst.Port() }
func (w *sandboxWrapper) Workspace() string              { return w.inst.Workspace() }
func (w *sandboxWrapper) IsInitializing() bool           { return w.inst.IsInitializing() }
func (w *sandboxWrapper) Done() <-chan struct{}          { return w.inst.Done() }
func (w *sandboxWrapper) Err() error                     { return w.inst.Err() }
func (w *sandboxWrapper) Wait(ctx context.Context) error { return w.inst.Wait(ctx) }

func (w *sandboxWrapper) Server(ctx context.Context) (Server, error) {
	srv, err := w.inst.Server(ctx)
	if err != nil {
		return Server{}, err
	}
	return Server{Endpoint: srv.Endpoint(), Port: w.inst.Port()}, nil
}

func (w *sandboxWrapper) Client(ctx context.Context) (*ethclient.Client, error) {
	c, err := w.inst.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Eth(), nil
}

func (w *sandboxWrapper) Contracts(ctx context.Context) (map[string]Artifact, error) {
	return w.inst.Contracts(ctx)
}

func (w *sandboxWrapper) Addresses(ctx context.Context) (map[string]string, error) {
	return w.inst.Addresses(ctx)
}

func (w *sandboxWrapper) Publisher(ctx context.Context) (string, error) {
	return w.inst.Publisher(ctx)
}

func (w *sandboxWrapper) Accounts(ctx context.Context) ([]string, error) {
	return w.inst.Accounts(ctx)
}

func (w *sandboxWrapper) NetworkID(ctx context.Context) (uint64, error) {
	return w.inst.NetworkID(ctx)
}

func (w *sandboxWrapper) Close(ctx context.Context) error {
	return w.inst.Close(ctx)
}
