// Package ganache runs a ganache test network as a supervised child process.
package ganache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/giantswarm/chainenv/internal/fileutil"
	"github.com/giantswarm/chainenv/internal/netutil"
	"github.com/giantswarm/chainenv/internal/process"
)

// readinessPollInterval is the delay between TCP dials while ganache boots.
const readinessPollInterval = 25 * time.Millisecond

// readinessDialTimeout is the timeout of each readiness dial.
const readinessDialTimeout = time.Second

var _ process.Stoppable = (*Process)(nil)

// Config holds the configuration for a ganache process.
type Config struct {
	Binary  string // Path to the ganache binary (default: "ganache-cli")
	DataDir string // Working directory for logs
	Host    string // Listen host (default: 127.0.0.1)
	Port    int    // Listen port

	Seed                       string // Deterministic account seed
	Accounts                   int    // Number of funded accounts
	DefaultBalanceEther        uint64 // Balance of each account
	GasLimit                   uint64 // Block gas limit; zero keeps ganache's default
	AllowUnlimitedContractSize bool

	// LogSink receives ganache's stdout line by line. Optional.
	LogSink func(string)

	// StopTimeout is used by Close when Stop was not called first.
	StopTimeout time.Duration

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.Binary == "" {
		errs = append(errs, errors.New("binary path must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if c.Port <= 0 {
		errs = append(errs, errors.New("port must be positive"))
	}
	if c.Seed == "" {
		errs = append(errs, errors.New("seed must not be empty"))
	}
	if c.Accounts <= 0 {
		errs = append(errs, errors.New("account count must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) host() string {
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

// args renders the ganache-cli command line. ganache serves HTTP and
// websocket JSON-RPC on the same port.
func (c Config) args() []string {
	args := []string{
		"--host", c.host(),
		"--port", strconv.Itoa(c.Port),
		"--accounts", strconv.Itoa(c.Accounts),
		"--seed", c.Seed,
		"--networkId", strconv.FormatUint(networkIDFromSeed(c.Seed), 10),
	}
	if c.DefaultBalanceEther > 0 {
		args = append(args, "--defaultBalanceEther", strconv.FormatUint(c.DefaultBalanceEther, 10))
	}
	if c.GasLimit > 0 {
		args = append(args, "--gasLimit", strconv.FormatUint(c.GasLimit, 10))
	}
	if c.AllowUnlimitedContractSize {
		args = append(args, "--allowUnlimitedContractSize")
	}
	return args
}

// networkIDFromSeed derives ganache's --networkId from a "0x"-prefixed hex
// seed so that every sandbox reports a distinct net_version. Seeds that are
// not hex fall back to ganache's usual development id.
func networkIDFromSeed(seed string) uint64 {
	if len(seed) > 2 && seed[:2] == "0x" {
		if v, err := strconv.ParseUint(seed[2:], 16, 32); err == nil && v != 0 {
			return v
		}
	}
	return 5777
}

// Process manages a ganache process lifecycle. Stop and Close are safe to
// call from several goroutines; the registry barrier and a failed pipeline
// may both try to release the same network.
type Process struct {
	config Config

	mu   sync.Mutex
	base process.BaseProcess
	sink *process.LineWriter
}

// New validates cfg and returns an unstarted Process. New performs no I/O.
func New(cfg Config) (*Process, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ganache config: %w", err)
	}
	return &Process{
		config: cfg,
		base:   process.NewBaseProcess("ganache", cfg.Logger, cfg.StopTimeout),
	}, nil
}

// Start launches ganache. It returns once the process is running, not once it
// accepts connections; call WaitReady for that. ctx only guards the launch:
// the process outlives it and is terminated by Stop.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("start ganache: %w", err)
	}
	if p.base.IsStarted() {
		return process.ErrAlreadyStarted
	}
	if err := fileutil.EnsureDir(p.config.DataDir); err != nil {
		return fmt.Errorf("prepare ganache data dir: %w", err)
	}

	path, err := exec.LookPath(p.config.Binary)
	if err != nil {
		return fmt.Errorf("locate ganache binary: %w", err)
	}

	// A foreign listener on the port would pass the readiness check while
	// ganache itself dies with EADDRINUSE.
	if err := netutil.CheckPortFree(p.config.host(), p.config.Port); err != nil {
		return fmt.Errorf("start ganache: %w", err)
	}

	cmd := exec.Command(path, p.config.args()...) //nolint:gosec // G204: args are built from validated config

	var tee io.Writer
	if p.config.LogSink != nil {
		p.sink = process.NewLineWriter(p.config.LogSink)
		tee = p.sink
	}
	if err := p.base.SetupAndStart(cmd, p.config.DataDir, tee); err != nil {
		p.sink = nil
		return fmt.Errorf("setup and start ganache process: %w", err)
	}
	return nil
}

// WaitReady polls the ganache port until it accepts TCP connections, the
// process exits, or timeout elapses.
func (p *Process) WaitReady(ctx context.Context, timeout time.Duration) error {
	addr := net.JoinHostPort(p.config.host(), strconv.Itoa(p.config.Port))

	p.mu.Lock()
	log := p.base.Logger()
	exited := p.base.Exited()
	p.mu.Unlock()

	dialer := &net.Dialer{Timeout: readinessDialTimeout}
	if err := process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      readinessPollInterval,
		Timeout:       timeout,
		Name:          "ganache",
		Port:          p.config.Port,
		Logger:        log,
		ProcessExited: exited,
	}, func(checkCtx context.Context, attempt int) (bool, error) {
		conn, err := dialer.DialContext(checkCtx, "tcp", addr)
		if err != nil {
			log.Debug("waitForGanache attempt", "port", p.config.Port, "attempt", attempt, "error", err)
			return false, nil
		}
		_ = conn.Close()
		return true, nil
	}); err != nil {
		return fmt.Errorf("ganache not ready: %w", err)
	}
	select {
	case <-exited:
		return fmt.Errorf("ganache not ready: port %d answered but %w", p.config.Port, process.ErrProcessExited)
	default:
	}
	return nil
}

// NetworkID returns the net_version ganache was started with.
func (p *Process) NetworkID() uint64 {
	return networkIDFromSeed(p.config.Seed)
}

// Endpoint returns the websocket JSON-RPC endpoint.
func (p *Process) Endpoint() string {
	return "ws://" + net.JoinHostPort(p.config.host(), strconv.Itoa(p.config.Port))
}

// Port returns the listen port.
func (p *Process) Port() int {
	return p.config.Port
}

// Stop terminates ganache within timeout.
func (p *Process) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.base.Stop(timeout)
	if p.sink != nil {
		p.sink.Flush()
	}
	return err
}

// Close releases the log files held by the process.
func (p *Process) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.base.Close()
}
