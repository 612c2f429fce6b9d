package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/chainenv/internal/project"
	"golang.org/x/sync/errgroup"
)

// SandboxDirName is the directory under the base dir holding workspaces.
const SandboxDirName = "contracts-sandbox"

// maxParallelCopies bounds concurrent extra-path copies.
const maxParallelCopies = 4

// Attribute names used in timeout errors.
const (
	AttrServer    = "server"
	AttrClient    = "client"
	AttrContracts = "contracts"
	AttrAddresses = "addresses"
	AttrPublisher = "publisher"
	AttrAccounts  = "accounts"
	AttrNetworkID = "networkID"
)

// Instance is one sandbox: a network, the compiled artifacts of its staged
// project, and the addresses its migrations deployed.
//
// Synchronization strategy:
//   - Attributes are Deferred values settled by the pipeline goroutine.
//   - project, server and client are written only by the pipeline goroutine
//     and read by Close after done is closed.
//   - closeMu serializes Close; closed records the first successful Close.
type Instance struct {
	cfg   InstanceConfig
	tools Toolchain
	reg   *Registry

	id        string
	port      int
	workspace string
	log       *slog.Logger

	initializing atomic.Bool
	done         chan struct{}
	err          error // terminal pipeline error, read after done

	project *project.Config
	server  Server
	client  Client

	srv       *Deferred[Server]
	cli       *Deferred[Client]
	contracts *Deferred[map[string]project.Artifact]
	addresses *Deferred[map[string]string]
	publisher *Deferred[string]
	accounts  *Deferred[[]string]
	networkID *Deferred[uint64]

	closeMu sync.Mutex
	closed  bool
}

// NewInstanceParams holds the parameters for creating a new Instance.
// All fields are required.
type NewInstanceParams struct {
	ID       string
	Port     int
	Registry *Registry
	Tools    Toolchain
	Config   InstanceConfig
}

// NewInstance creates an Instance without starting its pipeline. Panics if
// ID is empty, Port is not positive, Registry is nil, or Tools or Config fail
// validation. Most callers want Registry.NewInstance.
func NewInstance(params NewInstanceParams) *Instance {
	if params.ID == "" {
		panic("chainenv: instance id must not be empty")
	}
	if params.Port <= 0 {
		panic(fmt.Sprintf("chainenv: instance port must be positive, got %d", params.Port))
	}
	if params.Registry == nil {
		panic("chainenv: instance registry must not be nil")
	}
	if err := params.Tools.Validate(); err != nil {
		panic(fmt.Sprintf("chainenv: invalid toolchain: %v", err))
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("chainenv: invalid instance config: %v", err))
	}

	timeout := params.Config.AttributeTimeout
	i := &Instance{
		cfg:       params.Config,
		tools:     params.Tools,
		reg:       params.Registry,
		id:        params.ID,
		port:      params.Port,
		workspace: filepath.Join(params.Config.BaseDir, SandboxDirName, params.ID),
		log:       Logger().With("network", params.ID, "port", params.Port),
		done:      make(chan struct{}),
		srv:       NewDeferred[Server](AttrServer, timeout),
		cli:       NewDeferred[Client](AttrClient, timeout),
		contracts: NewDeferred[map[string]project.Artifact](AttrContracts, timeout),
		addresses: NewDeferred[map[string]string](AttrAddresses, timeout),
		publisher: NewDeferred[string](AttrPublisher, timeout),
		accounts:  NewDeferred[[]string](AttrAccounts, timeout),
		networkID: NewDeferred[uint64](AttrNetworkID, timeout),
	}
	i.initializing.Store(true)
	return i
}

// start launches the pipeline goroutine.
func (i *Instance) start() {
	go i.run()
}

// pipelineStage is one step of run.
type pipelineStage struct {
	stage Stage
	run   func(ctx context.Context) error
}

func (i *Instance) run() {
	defer close(i.done)

	startTime := time.Now()
	i.log.Debug("initializing sandbox", "workspace", i.workspace)

	stages := []pipelineStage{
		{StageWorkspace, i.stageWorkspace},
		{StageConfigure, i.stageConfigure},
		{StageNetwork, i.stageNetwork},
		{StageAttach, i.stageAttach},
		{StagePublisher, i.stagePublisher},
		{StageCompile, i.stageCompile},
		{StageDeploy, i.stageDeploy},
	}

	// No mid-pipeline cancellation: stages are bounded by their own timeouts.
	ctx := context.Background()
	for _, s := range stages {
		stageStart := time.Now()
		if err := s.run(ctx); err != nil {
			i.fail(&StageError{Stage: s.stage, Err: err})
			return
		}
		i.log.Debug("stage complete", "stage", s.stage, "elapsed", time.Since(stageStart).Round(time.Millisecond))
	}

	i.initializing.Store(false)
	i.log.Info("sandbox ready", "elapsed", time.Since(startTime).Round(time.Millisecond))
}

// fail rejects every pending attribute with err and releases the network if
// it started. Attributes settled by earlier stages stay readable.
func (i *Instance) fail(err *StageError) {
	i.err = err
	i.srv.Reject(err)
	i.cli.Reject(err)
	i.contracts.Reject(err)
	i.addresses.Reject(err)
	i.publisher.Reject(err)
	i.accounts.Reject(err)
	i.networkID.Reject(err)

	if i.server != nil {
		if relErr := i.reg.releaseNow(i.id); relErr != nil {
			i.log.Warn("failed to release network after pipeline failure", "error", relErr)
		}
	}

	i.initializing.Store(false)
	i.log.Error("sandbox initialization failed", "stage", err.Stage, "error", err.Err)
}

// stageWorkspace copies the project templates sequentially, then the extra
// copy paths concurrently.
func (i *Instance) stageWorkspace(_ context.Context) error {
	for _, name := range i.cfg.TemplateFiles {
		if err := i.copyIntoWorkspace(name); err != nil {
			return err
		}
	}
	for _, name := range i.cfg.OptionalTemplateFiles {
		if _, err := os.Stat(filepath.Join(i.cfg.ProjectDir, name)); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := i.copyIntoWorkspace(name); err != nil {
			return err
		}
	}

	var g errgroup.Group
	g.SetLimit(maxParallelCopies)
	for _, p := range i.cfg.CopyPaths {
		g.Go(func() error {
			return i.copyIntoWorkspace(p)
		})
	}
	return g.Wait()
}

func (i *Instance) copyIntoWorkspace(rel string) error {
	src := filepath.Join(i.cfg.ProjectDir, rel)
	dst := filepath.Join(i.workspace, rel)
	if err := i.tools.Stager.Copy(src, dst); err != nil {
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return nil
}

// stageConfigure loads the staged project and binds it to this network.
func (i *Instance) stageConfigure(_ context.Context) error {
	cfg, err := i.tools.Loader.Load(i.workspace)
	if err != nil {
		return err
	}
	cfg.Bind(i.id)
	cfg.ImportPaths = slices.Clone(i.cfg.CopyPaths)
	i.project = cfg
	return nil
}

// stageNetwork starts the network. The registry entry is created only once
// the network is up.
func (i *Instance) stageNetwork(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.NetworkStartTimeout)
	defer cancel()

	var sink func(string)
	if i.cfg.ServerLog {
		sink = func(line string) {
			i.log.Info("network log", "line", line)
		}
	}

	srv, err := i.tools.Network.Start(ctx, NetworkConfig{
		DataDir:                    i.workspace,
		Port:                       i.port,
		Seed:                       i.id,
		Accounts:                   i.cfg.Accounts,
		DefaultBalanceEther:        i.cfg.DefaultBalanceEther,
		GasLimit:                   i.project.Gas,
		AllowUnlimitedContractSize: true,
		LogSink:                    sink,
	})
	if err != nil {
		return err
	}

	i.server = srv
	i.reg.register(i.id, srv)
	i.srv.Resolve(srv)
	return nil
}

// stageAttach connects a client to the network within ConnectTimeout.
func (i *Instance) stageAttach(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.ConnectTimeout)
	defer cancel()

	c, err := i.tools.Dialer.Dial(ctx, i.server.Endpoint())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %w", ErrConnectionTimeout, i.cfg.ConnectTimeout, err)
		}
		return err
	}

	i.client = c
	i.cli.Resolve(c)
	return nil
}

// stagePublisher reads the accounts and chain network id and records the
// network entry, with the first account as sender, into the project config.
func (i *Instance) stagePublisher(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.ConnectTimeout)
	defer cancel()

	accounts, err := i.client.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}
	chainID, err := i.client.NetworkID(ctx)
	if err != nil {
		return err
	}
	if want := i.server.NetworkID(); want != 0 && chainID != want {
		return fmt.Errorf("%w: %s reports network id %d, want %d",
			ErrForeignNetwork, i.server.Endpoint(), chainID, want)
	}

	publisher := accounts[0]
	i.project.SetNetwork(i.id, project.Network{
		Host:      project.DefaultHost,
		Port:      i.port,
		NetworkID: chainID,
		From:      publisher,
	})

	i.accounts.Resolve(slices.Clone(accounts))
	i.publisher.Resolve(publisher)
	i.networkID.Resolve(chainID)
	return nil
}

// stageCompile compiles every contract of the staged project.
func (i *Instance) stageCompile(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.BuildTimeout)
	defer cancel()

	artifacts, err := i.tools.Compiler.Compile(ctx, i.project)
	if err != nil {
		return err
	}
	if artifacts == nil {
		artifacts = map[string]project.Artifact{}
	}
	i.contracts.Resolve(artifacts)
	return nil
}

// stageDeploy runs the migrations and scrapes deployed addresses from their
// output.
func (i *Instance) stageDeploy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.BuildTimeout)
	defer cancel()

	var mu sync.Mutex
	addresses := make(map[string]string)
	err := i.tools.Deployer.Deploy(ctx, i.project, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		scrapeAddress(line, i.cfg.Extract, addresses)
	})
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	i.addresses.Resolve(addresses)
	return nil
}

// scrapeAddress records "key: value" from line into addresses when line
// contains "<name>:" for any name. The match is an unanchored substring
// test; the key is whatever precedes the first colon.
func scrapeAddress(line string, names []string, addresses map[string]string) {
	line = strings.TrimSpace(line)
	for _, name := range names {
		if !strings.Contains(line, name+":") {
			continue
		}
		parts := strings.Split(line, ":")
		addresses[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
}

// Network returns the instance's network id. It is assigned at construction.
func (i *Instance) Network() string {
	return i.id
}

// Port returns the network port.
func (i *Instance) Port() int {
	return i.port
}

// Workspace returns the staged project directory.
func (i *Instance) Workspace() string {
	return i.workspace
}

// IsInitializing reports whether the pipeline is still running.
func (i *Instance) IsInitializing() bool {
	return i.initializing.Load()
}

// Done returns a channel closed when the pipeline finishes, successfully or not.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// Err returns the terminal pipeline error, or nil while running or after
// success.
func (i *Instance) Err() error {
	select {
	case <-i.done:
		return i.err
	default:
		return nil
	}
}

// Wait blocks until the pipeline finishes or ctx is done and returns the
// pipeline error.
func (i *Instance) Wait(ctx context.Context) error {
	select {
	case <-i.done:
		return i.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Server returns the running network.
func (i *Instance) Server(ctx context.Context) (Server, error) {
	return i.srv.Get(ctx)
}

// Client returns the attached RPC client.
func (i *Instance) Client(ctx context.Context) (Client, error) {
	return i.cli.Get(ctx)
}

// Contracts returns a copy of the compiled artifacts keyed by contract name.
func (i *Instance) Contracts(ctx context.Context) (map[string]project.Artifact, error) {
	m, err := i.contracts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}

// Addresses returns a copy of the deployed addresses keyed by contract name.
func (i *Instance) Addresses(ctx context.Context) (map[string]string, error) {
	m, err := i.addresses.Get(ctx)
	if err != nil {
		return nil, err
	}
	return maps.Clone(m), nil
}

// Publisher returns the default transaction sender, the first account.
func (i *Instance) Publisher(ctx context.Context) (string, error) {
	return i.publisher.Get(ctx)
}

// Accounts returns a copy of the network's accounts in node order.
func (i *Instance) Accounts(ctx context.Context) ([]string, error) {
	a, err := i.accounts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a), nil
}

// NetworkID returns the chain network id reported by the node.
func (i *Instance) NetworkID(ctx context.Context) (uint64, error) {
	return i.networkID.Get(ctx)
}

// Close waits for the pipeline to finish, closes the client, requests
// closure from the registry and removes the workspace unless configured to
// keep it. Only the first successful call does any work; a call that gives
// up because ctx is done may be retried.
func (i *Instance) Close(ctx context.Context) error {
	i.closeMu.Lock()
	defer i.closeMu.Unlock()

	if i.closed {
		return nil
	}
	select {
	case <-i.done:
	case <-ctx.Done():
		return fmt.Errorf("close sandbox %s: %w", i.id, ctx.Err())
	}
	i.closed = true

	if i.client != nil {
		i.client.Close()
	}

	var errs []error
	if err := i.reg.RequestClose(i.id); err != nil {
		errs = append(errs, err)
	}
	if !i.cfg.KeepWorkspace {
		if err := os.RemoveAll(i.workspace); err != nil {
			errs = append(errs, fmt.Errorf("remove workspace: %w", err))
		}
	}
	i.log.Debug("sandbox closed")
	return errors.Join(errs...)
}
