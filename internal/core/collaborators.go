package core

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/giantswarm/chainenv/internal/project"
)

// Stager copies a file or directory tree into the workspace.
type Stager interface {
	Copy(src, dst string) error
}

// ConfigLoader loads the project configuration of a staged workspace.
type ConfigLoader interface {
	Load(dir string) (*project.Config, error)
}

// NetworkConfig is passed to NetworkStarter.Start.
type NetworkConfig struct {
	DataDir                    string
	Port                       int
	Seed                       string
	Accounts                   int
	DefaultBalanceEther        uint64
	GasLimit                   uint64
	AllowUnlimitedContractSize bool
	// LogSink receives the network's log lines; nil discards them.
	LogSink func(string)
}

// NetworkStarter launches a network and returns once it accepts connections.
// A failed Start must not leave a running process behind.
type NetworkStarter interface {
	Start(ctx context.Context, cfg NetworkConfig) (Server, error)
}

// Server is a running network. Release stops it; it is called at most once
// per server by the registry. NetworkID is the net_version the network was
// started with; zero means unknown and skips the identity check.
type Server interface {
	Endpoint() string
	NetworkID() uint64
	Release() error
}

// Dialer attaches a client to a network endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Client, error)
}

// Client is an RPC connection to a network.
type Client interface {
	Accounts(ctx context.Context) ([]string, error)
	NetworkID(ctx context.Context) (uint64, error)
	// Eth returns the typed client sharing this connection. It may be nil for
	// clients that do not speak the full eth API.
	Eth() *ethclient.Client
	Close()
}

// Compiler compiles all contracts of a project.
type Compiler interface {
	Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error)
}

// Deployer runs a project's migrations, passing every log line to onLine.
type Deployer interface {
	Deploy(ctx context.Context, cfg *project.Config, onLine func(string)) error
}

// Toolchain bundles the collaborators an Instance drives.
type Toolchain struct {
	Stager   Stager
	Loader   ConfigLoader
	Network  NetworkStarter
	Dialer   Dialer
	Compiler Compiler
	Deployer Deployer
}

// Validate reports every missing collaborator.
func (t Toolchain) Validate() error {
	var errs []error
	if t.Stager == nil {
		errs = append(errs, errors.New("stager must not be nil"))
	}
	if t.Loader == nil {
		errs = append(errs, errors.New("config loader must not be nil"))
	}
	if t.Network == nil {
		errs = append(errs, errors.New("network starter must not be nil"))
	}
	if t.Dialer == nil {
		errs = append(errs, errors.New("dialer must not be nil"))
	}
	if t.Compiler == nil {
		errs = append(errs, errors.New("compiler must not be nil"))
	}
	if t.Deployer == nil {
		errs = append(errs, errors.New("deployer must not be nil"))
	}
	return errors.Join(errs...)
}
