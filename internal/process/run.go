package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTailLines is how many trailing stderr lines Run keeps for its error.
const stderrTailLines = 20

// waitDelay bounds how long Run waits for output pipes to drain after the
// process was killed. Tools like truffle leave grandchildren holding stdout.
const waitDelay = 2 * time.Second

// RunConfig describes a one-shot tool invocation.
type RunConfig struct {
	Name   string   // For logs and errors (e.g. "truffle compile")
	Binary string   // Executable name or path
	Args   []string // Arguments after the binary
	Dir    string   // Working directory
	Env    []string // Extra environment, appended to os.Environ()

	// OnLine receives every stdout line. Optional.
	OnLine func(string)

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

func (c RunConfig) validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.Binary == "" {
		errs = append(errs, errors.New("binary must not be empty"))
	}
	if c.Dir == "" {
		errs = append(errs, ErrEmptyDataDir)
	}
	return errors.Join(errs...)
}

// Run executes the command and waits for it to exit. stdout is split into
// lines for OnLine; the last lines of stderr are attached to the returned
// error when the command fails. Canceling ctx kills the process.
func Run(ctx context.Context, cfg RunConfig) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return fmt.Errorf("%s: locate %s: %w", cfg.Name, cfg.Binary, err)
	}

	cmd := exec.CommandContext(ctx, path, cfg.Args...) //nolint:gosec // G204: binary and args come from sandbox configuration
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.WaitDelay = waitDelay
	configureSysProcAttr(cmd)

	onLine := cfg.OnLine
	if onLine == nil {
		onLine = func(string) {}
	}
	stdout := NewLineWriter(onLine)
	tail := newTail(stderrTailLines)
	stderr := NewLineWriter(tail.add)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Debug("running tool", "name", cfg.Name, "args", cfg.Args, "dir", cfg.Dir)
	runErr := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", cfg.Name, ctxErr)
		}
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("%s: %w: %s", cfg.Name, runErr, msg)
		}
		return fmt.Errorf("%s: %w", cfg.Name, runErr)
	}
	return nil
}

// tail keeps the last n lines added to it.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
