package process

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/giantswarm/chainenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a running process.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyDataDir is returned when SetupAndStart is called with an empty data directory.
const ErrEmptyDataDir = sentinel.Error("data directory must not be empty")

// BaseProcess carries the start/stop plumbing shared by supervised
// long-running processes. Embed it in a package-specific Process type.
//
// BaseProcess is not safe for concurrent use; the owning type serializes
// SetupAndStart, Stop, Close and IsStarted.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // result of the single cmd.Wait call
	exited      <-chan struct{} // closed when the process exits
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // used by Close when Stop was skipped; zero means DefaultStopTimeout
}

// NewBaseProcess creates a BaseProcess. A nil logger falls back to
// slog.Default(). Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("chainenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// Stop terminates the process within timeout. IsStarted reports false
// afterwards whether or not the stop succeeded. Stopping a process that was
// never started returns nil.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.cmd = nil
		b.waitDone = nil
		b.exited = nil
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
	return err
}

// Close closes the log files. A process that is still running is stopped
// first, with a warning, using the configured stop timeout.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Logger returns the process logger.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel closed when the process exits, or nil when the
// process is not running.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// SetupAndStart starts cmd in dataDir with stdout/stderr captured to log
// files. If tee is non-nil, stdout is also written to it. cmd must have Path
// and Args set.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, dataDir string, tee io.Writer) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if dataDir == "" {
		return ErrEmptyDataDir
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = dataDir
	configureSysProcAttr(cmd)

	logFiles, err := StartCmd(cmd, dataDir, b.name, tee)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	b.logFiles = logFiles

	// Exactly one cmd.Wait per process. done feeds Stop; exited is the
	// broadcast signal for readiness polling.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}
