package ganache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/giantswarm/chainenv/internal/process"
)

// DefaultBinary is the ganache executable looked up on PATH.
const DefaultBinary = "ganache-cli"

// Launcher starts ganache networks with shared settings.
type Launcher struct {
	Binary       string        // Executable name or path (default: DefaultBinary)
	ReadyTimeout time.Duration // Bound on WaitReady
	StopTimeout  time.Duration // Bound on Release
	Logger       *slog.Logger
}

// LaunchConfig holds the per-network settings.
type LaunchConfig struct {
	DataDir                    string
	Port                       int
	Seed                       string
	Accounts                   int
	DefaultBalanceEther        uint64
	GasLimit                   uint64
	AllowUnlimitedContractSize bool
	LogSink                    func(string)
}

// Launch starts a network and waits for it to accept connections. On any
// failure the process is stopped before returning.
func (l *Launcher) Launch(ctx context.Context, cfg LaunchConfig) (*Server, error) {
	binary := l.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	proc, err := New(Config{
		Binary:                     binary,
		DataDir:                    filepath.Join(cfg.DataDir, "ganache"),
		Port:                       cfg.Port,
		Seed:                       cfg.Seed,
		Accounts:                   cfg.Accounts,
		DefaultBalanceEther:        cfg.DefaultBalanceEther,
		GasLimit:                   cfg.GasLimit,
		AllowUnlimitedContractSize: cfg.AllowUnlimitedContractSize,
		LogSink:                    cfg.LogSink,
		StopTimeout:                l.StopTimeout,
		Logger:                     log,
	})
	if err != nil {
		return nil, err
	}

	if err := proc.Start(ctx); err != nil {
		proc.Close()
		return nil, err
	}
	if err := proc.WaitReady(ctx, l.ReadyTimeout); err != nil {
		return nil, errors.Join(err, process.StopCloseAndNil(&proc, l.stopTimeout()))
	}

	log.Debug("ganache ready", "port", cfg.Port, "seed", cfg.Seed)
	return &Server{proc: proc, stopTimeout: l.stopTimeout()}, nil
}

func (l *Launcher) stopTimeout() time.Duration {
	if l.StopTimeout <= 0 {
		return process.DefaultStopTimeout
	}
	return l.StopTimeout
}

// Server is a running ganache network.
type Server struct {
	proc        *Process
	stopTimeout time.Duration

	once sync.Once
	err  error
}

// Endpoint returns the websocket JSON-RPC endpoint of the network.
func (s *Server) Endpoint() string {
	return s.proc.Endpoint()
}

// Port returns the listen port.
func (s *Server) Port() int {
	return s.proc.Port()
}

// NetworkID returns the net_version the network was started with.
func (s *Server) NetworkID() uint64 {
	return s.proc.NetworkID()
}

// Release stops the network and closes its log files. Only the first call
// does any work; later calls return the first result.
func (s *Server) Release() error {
	s.once.Do(func() {
		if err := s.proc.Stop(s.stopTimeout); err != nil {
			s.err = fmt.Errorf("stop ganache on port %d: %w", s.proc.Port(), err)
		}
		s.proc.Close()
	})
	return s.err
}
