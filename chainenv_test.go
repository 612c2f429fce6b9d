package chainenv_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/giantswarm/chainenv"
	"github.com/giantswarm/chainenv/internal/core"
	"github.com/giantswarm/chainenv/internal/project"
)

type nopStager struct{}

func (nopStager) Copy(string, string) error { return nil }

type stubLoader struct{}

func (stubLoader) Load(dir string) (*project.Config, error) {
	return &project.Config{Dir: dir, Gas: project.DefaultGas, BuildDir: project.DefaultBuildDir}, nil
}

type stubServer struct {
	endpoint string
	releases *atomic.Int32
}

func (s stubServer) Endpoint() string { return s.endpoint }

func (s stubServer) NetworkID() uint64 { return 0 }

func (s stubServer) Release() error {
	s.releases.Add(1)
	return nil
}

type stubNetwork struct {
	releases atomic.Int32
	fail     error
}

func (n *stubNetwork) Start(_ context.Context, cfg core.NetworkConfig) (core.Server, error) {
	if n.fail != nil {
		return nil, n.fail
	}
	return stubServer{endpoint: fmt.Sprintf("ws://127.0.0.1:%d", cfg.Port), releases: &n.releases}, nil
}

type stubClient struct{}

func (stubClient) Accounts(context.Context) ([]string, error) {
	return []string{"0x627306090abaB3A6e1400e9345bC60c78a8BEf57"}, nil
}
func (stubClient) NetworkID(context.Context) (uint64, error) { return 5777, nil }
func (stubClient) Eth() *ethclient.Client                    { return nil }
func (stubClient) Close()                                    {}

type stubDialer struct{}

func (stubDialer) Dial(context.Context, string) (core.Client, error) { return stubClient{}, nil }

type stubBuild struct{}

func (stubBuild) Compile(context.Context, *project.Config) (map[string]project.Artifact, error) {
	return map[string]project.Artifact{"MetaCoin": {ContractName: "MetaCoin"}}, nil
}

func (stubBuild) Deploy(_ context.Context, _ *project.Config, onLine func(string)) error {
	onLine("  MetaCoin: 0xf25186b5081ff5ce73482ad761db0eb0d25abfbf")
	return nil
}

func stubToolchain(network *stubNetwork) core.Toolchain {
	return core.Toolchain{
		Stager:   nopStager{},
		Loader:   stubLoader{},
		Network:  network,
		Dialer:   stubDialer{},
		Compiler: stubBuild{},
		Deployer: stubBuild{},
	}
}

func newSandbox(t *testing.T, reg *chainenv.Registry) chainenv.Sandbox {
	t.Helper()
	sb, err := reg.New(chainenv.WithProjectDir(t.TempDir()), chainenv.WithExtract("MetaCoin"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sb
}

func closeSandbox(t *testing.T, sb chainenv.Sandbox) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sb.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRegistryNewSandbox(t *testing.T) {
	t.Parallel()

	network := &stubNetwork{}
	reg := chainenv.NewRegistryWithToolchain(stubToolchain(network),
		chainenv.WithBaseDir(t.TempDir()),
		chainenv.WithBasePort(30000),
	)
	sb := newSandbox(t, reg)

	if sb.Port() != 30000 {
		t.Errorf("Port() = %d, want first port of the private allocator", sb.Port())
	}
	if sb.Network() == "" {
		t.Error("Network() is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addrs, err := sb.Addresses(ctx)
	if err != nil {
		t.Fatalf("Addresses() error = %v", err)
	}
	if addrs["MetaCoin"] != "0xf25186b5081ff5ce73482ad761db0eb0d25abfbf" {
		t.Errorf("Addresses() = %v", addrs)
	}
	srv, err := sb.Server(ctx)
	if err != nil || srv.Port != 30000 || srv.Endpoint != "ws://127.0.0.1:30000" {
		t.Errorf("Server() = %+v, %v", srv, err)
	}
	if _, err := sb.Client(ctx); err != nil {
		t.Errorf("Client() error = %v", err)
	}
	if id, err := sb.NetworkID(ctx); err != nil || id != 5777 {
		t.Errorf("NetworkID() = %d, %v", id, err)
	}
	if pub, err := sb.Publisher(ctx); err != nil || pub == "" {
		t.Errorf("Publisher() = %q, %v", pub, err)
	}
	if contracts, err := sb.Contracts(ctx); err != nil || len(contracts) != 1 {
		t.Errorf("Contracts() = %v, %v", contracts, err)
	}
	if err := sb.Wait(ctx); err != nil {
		t.Errorf("Wait() = %v", err)
	}

	if got := reg.Stats(); got.Open != 1 || got.Running != 1 {
		t.Errorf("Stats() = %+v, want 1 open 1 running", got)
	}
	closeSandbox(t, sb)
	if got := reg.Stats(); got.Open != 0 || got.Running != 0 || got.Networks != 1 {
		t.Errorf("Stats() after Close = %+v", got)
	}
	if network.releases.Load() != 1 {
		t.Errorf("network released %d times, want 1", network.releases.Load())
	}
	if err := reg.Close(); err != nil {
		t.Errorf("Registry.Close() = %v", err)
	}
}

func TestRegistryCapacity(t *testing.T) {
	t.Parallel()

	reg := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{}),
		chainenv.WithBaseDir(t.TempDir()),
		chainenv.WithMaxInstances(1),
	)
	sb := newSandbox(t, reg)

	_, err := reg.New(chainenv.WithProjectDir(t.TempDir()))
	if !errors.Is(err, chainenv.ErrCapacityExceeded) {
		t.Fatalf("New() over capacity = %v, want ErrCapacityExceeded", err)
	}

	closeSandbox(t, sb)
	again := newSandbox(t, reg)
	closeSandbox(t, again)
}

func TestSharedAllocatorAcrossRegistries(t *testing.T) {
	t.Parallel()

	a := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{}), chainenv.WithBaseDir(t.TempDir()))
	b := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{}), chainenv.WithBaseDir(t.TempDir()))
	sa := newSandbox(t, a)
	sbx := newSandbox(t, b)
	defer closeSandbox(t, sa)
	defer closeSandbox(t, sbx)

	if sa.Port() == sbx.Port() {
		t.Errorf("registries share port %d", sa.Port())
	}
	if sa.Network() == sbx.Network() {
		t.Errorf("registries share network id %s", sa.Network())
	}
}

func TestSameBasePortAcrossRegistries(t *testing.T) {
	t.Parallel()

	a := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{}),
		chainenv.WithBaseDir(t.TempDir()), chainenv.WithBasePort(31000))
	b := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{}),
		chainenv.WithBaseDir(t.TempDir()), chainenv.WithBasePort(31000))
	sa := newSandbox(t, a)
	sbx := newSandbox(t, b)
	defer closeSandbox(t, sa)
	defer closeSandbox(t, sbx)

	if sa.Port() == sbx.Port() {
		t.Errorf("registries with the same base port both issued port %d", sa.Port())
	}
}

func TestSandboxFailureReportsStage(t *testing.T) {
	t.Parallel()

	cause := errors.New("address already in use")
	reg := chainenv.NewRegistryWithToolchain(stubToolchain(&stubNetwork{fail: cause}),
		chainenv.WithBaseDir(t.TempDir()),
	)
	sb := newSandbox(t, reg)
	defer closeSandbox(t, sb)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := sb.Addresses(ctx)
	var se *chainenv.StageError
	if !errors.As(err, &se) || se.Stage != chainenv.StageNetwork {
		t.Fatalf("Addresses() error = %v, want network StageError", err)
	}
	if !errors.Is(err, chainenv.ErrNetworkStart) || !errors.Is(err, cause) {
		t.Errorf("Addresses() error = %v, want ErrNetworkStart wrapping cause", err)
	}
	if err := sb.Wait(ctx); !errors.As(err, &se) {
		t.Errorf("Wait() = %v, want StageError", err)
	}
	if sb.IsInitializing() {
		t.Error("IsInitializing() = true after failure")
	}
	if !errors.Is(sb.Err(), cause) {
		t.Errorf("Err() = %v", sb.Err())
	}
}
