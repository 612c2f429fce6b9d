package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/giantswarm/chainenv/internal/netutil"
	"github.com/giantswarm/chainenv/internal/project"
)

var errInjected = errors.New("injected failure")

// gate blocks callers until opened. A nil gate never blocks.
type gate chan struct{}

func newGate() gate { return make(gate) }

func (g gate) open() { close(g) }

func (g gate) wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stagerFunc func(src, dst string) error

func (f stagerFunc) Copy(src, dst string) error { return f(src, dst) }

type fakeStager struct {
	mu     sync.Mutex
	copies []string
	failOn string
}

func (f *fakeStager) Copy(src, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, src)
	if f.failOn != "" && src == f.failOn {
		return errInjected
	}
	return nil
}

func (f *fakeStager) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copies)
}

type fakeLoader struct {
	err error
}

func (f *fakeLoader) Load(dir string) (*project.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &project.Config{Dir: dir, Gas: project.DefaultGas, BuildDir: project.DefaultBuildDir}, nil
}

type fakeServer struct {
	endpoint  string
	networkID  uint64
	releases  atomic.Int32
	err       error
}

func (s *fakeServer) Endpoint() string { return s.endpoint }

func (s *fakeServer) NetworkID() uint64 { return s.networkID }

func (s *fakeServer) Release() error {
	s.releases.Add(1)
	return s.err
}

type fakeNetwork struct {
	gate       gate
	err        error
	releaseErr error
	// networkID is reported by started servers; zero skips the identity check.
	networkID  uint64

	mu      sync.Mutex
	servers []*fakeServer
	configs []NetworkConfig
}

func (f *fakeNetwork) Start(ctx context.Context, cfg NetworkConfig) (Server, error) {
	if err := f.gate.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if cfg.LogSink != nil {
		cfg.LogSink("Listening on 127.0.0.1")
	}
	s := &fakeServer{
		endpoint:  fmt.Sprintf("ws://127.0.0.1:%d", cfg.Port),
		networkID: f.networkID,
		err:       f.releaseErr,
	}
	f.servers = append(f.servers, s)
	return s, nil
}

func (f *fakeNetwork) server(t *testing.T, idx int) *fakeServer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx >= len(f.servers) {
		t.Fatalf("server %d not started (have %d)", idx, len(f.servers))
	}
	return f.servers[idx]
}

type fakeClient struct {
	accounts    []string
	networkID   uint64
	accountsErr error
	closes      atomic.Int32
}

func (c *fakeClient) Accounts(context.Context) ([]string, error) {
	return c.accounts, c.accountsErr
}

func (c *fakeClient) NetworkID(context.Context) (uint64, error) { return c.networkID, nil }

func (c *fakeClient) Eth() *ethclient.Client { return nil }

func (c *fakeClient) Close() { c.closes.Add(1) }

type fakeDialer struct {
	err   error
	block bool // wait for ctx instead of connecting
	// accounts overrides the default account list when non-nil.
	accounts []string

	mu      sync.Mutex
	clients []*fakeClient
}

var testAccounts = []string{
	"0x627306090abaB3A6e1400e9345bC60c78a8BEf57",
	"0xf17f52151EbEF6C7334FAD080c5704D77216b732",
}

func (f *fakeDialer) Dial(ctx context.Context, _ string) (Client, error) {
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("dial: %w", ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	accounts := testAccounts
	if f.accounts != nil {
		accounts = f.accounts
	}
	c := &fakeClient{accounts: accounts, networkID: 42}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

type fakeCompiler struct {
	gate gate
	err  error

	mu      sync.Mutex
	project *project.Config // config of the last Compile call
}

func (f *fakeCompiler) lastProject() *project.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.project
}

func (f *fakeCompiler) Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error) {
	if err := f.gate.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.project = cfg
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return map[string]project.Artifact{
		"MetaCoin":   {ContractName: "MetaCoin"},
		"ConvertLib": {ContractName: "ConvertLib"},
		"Migrations": {ContractName: "Migrations"},
	}, nil
}

type fakeDeployer struct {
	lines []string
	err   error
}

var migrateOutput = []string{
	"Running migration: 1_initial_migration.js",
	"  Deploying Migrations...",
	"  Migrations: 0x8cdaf0cd259887258bc13a92c0a6da92698644c0",
	"Running migration: 2_deploy_contracts.js",
	"  ConvertLib: 0x345ca3e014aaf5dca488057592ee47305d9b3e10",
	"  MetaCoin: 0xf25186b5081ff5ce73482ad761db0eb0d25abfbf",
	"Saving artifacts...",
}

func (f *fakeDeployer) Deploy(_ context.Context, _ *project.Config, onLine func(string)) error {
	lines := f.lines
	if lines == nil {
		lines = migrateOutput
	}
	for _, l := range lines {
		onLine(l)
	}
	return f.err
}

// testEnv bundles fakes with a registry.
type testEnv struct {
	stager   *fakeStager
	network  *fakeNetwork
	dialer   *fakeDialer
	compiler *fakeCompiler
	deployer *fakeDeployer
	loader   *fakeLoader
	reg      *Registry
}

func newTestEnv(t *testing.T, maxInstances int) *testEnv {
	t.Helper()
	return &testEnv{
		stager:   &fakeStager{},
		network:  &fakeNetwork{},
		dialer:   &fakeDialer{},
		compiler: &fakeCompiler{},
		deployer: &fakeDeployer{},
		loader:   &fakeLoader{},
		reg: NewRegistry(RegistryConfig{
			MaxInstances: maxInstances,
			Allocator:    netutil.NewAllocator(20000),
		}),
	}
}

func (e *testEnv) tools() Toolchain {
	return Toolchain{
		Stager:   e.stager,
		Loader:   e.loader,
		Network:  e.network,
		Dialer:   e.dialer,
		Compiler: e.compiler,
		Deployer: e.deployer,
	}
}

func testInstanceConfig(t *testing.T) InstanceConfig {
	t.Helper()
	return InstanceConfig{
		ProjectDir:          t.TempDir(),
		BaseDir:             t.TempDir(),
		TemplateFiles:       []string{"truffle-config.js", "contracts", "migrations"},
		Extract:             []string{"MetaCoin", "ConvertLib"},
		Accounts:            10,
		DefaultBalanceEther: 1_000_000,
		AttributeTimeout:    10 * time.Second,
		NetworkStartTimeout: 5 * time.Second,
		ConnectTimeout:      time.Second,
		BuildTimeout:        5 * time.Second,
	}
}

func (e *testEnv) newInstance(t *testing.T, cfg InstanceConfig) *Instance {
	t.Helper()
	inst, err := e.reg.NewInstance(cfg, e.tools())
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}
	return inst
}

// waitDone waits for the pipeline to finish.
func waitDone(t *testing.T, inst *Instance) {
	t.Helper()
	select {
	case <-inst.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

// requirePanicContains calls fn and verifies it panics with a message
// containing wantSubstr.
func requirePanicContains(t *testing.T, fn func(), wantSubstr string) {
	t.Helper()

	var recovered string
	func() {
		defer func() {
			if r := recover(); r != nil {
				recovered = fmt.Sprint(r)
			}
		}()
		fn()
	}()

	if recovered == "" {
		t.Fatal("expected panic, got none")
	}
	if !strings.Contains(recovered, wantSubstr) {
		t.Errorf("panic message %q does not contain %q", recovered, wantSubstr)
	}
}
