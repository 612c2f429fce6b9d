package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// LogFiles holds the stdout/stderr files of a supervised process.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dataDir    string
	stdoutName string // e.g. "ganache-stdout.log"
	stderrName string
}

func (l *LogFiles) create() error {
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both files. Calling it twice is safe.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the path of the stdout log file.
func (l *LogFiles) StdoutPath() string {
	return filepath.Join(l.dataDir, l.stdoutName)
}

// StderrPath returns the path of the stderr log file.
func (l *LogFiles) StderrPath() string {
	return filepath.Join(l.dataDir, l.stderrName)
}

// NewLogFiles creates "<name>-stdout.log" and "<name>-stderr.log" in dataDir.
func NewLogFiles(dataDir, processName string) (LogFiles, error) {
	l := LogFiles{
		dataDir:    dataDir,
		stdoutName: processName + "-stdout.log",
		stderrName: processName + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}

// DefaultStopTimeout is used when no explicit stop timeout is configured.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod is how long a process gets after SIGTERM before SIGKILL.
// Capped at the overall stop timeout.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait on the done channel after SIGKILL.
const killDrainTimeout = 10 * time.Second

// drainDone reads one value from done, giving up after timeout.
// It reports whether a value arrived and, if so, the cmd.Wait error.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone sends SIGTERM, escalates to SIGKILL after the grace period and
// waits for the process to exit. done must carry the result of the single
// cmd.Wait call made for cmd.
//
// Worst case it blocks for timeout + killDrainTimeout.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(waitErr, name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectSignalExit(err, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectSignalExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectSignalExit treats an exit caused by SIGTERM or SIGKILL as a clean
// stop. Any other error is returned prefixed with the process name.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// StartCmd creates the log files, wires stdout/stderr and starts cmd.
// When tee is non-nil stdout is also copied to it. On failure the log files
// are closed.
func StartCmd(cmd *exec.Cmd, dataDir, processName string, tee io.Writer) (LogFiles, error) {
	logFiles, err := NewLogFiles(dataDir, processName)
	if err != nil {
		return LogFiles{}, fmt.Errorf("create %s logs: %w", processName, err)
	}

	cmd.Stdout = logFiles.stdoutFile
	if tee != nil {
		cmd.Stdout = io.MultiWriter(logFiles.stdoutFile, tee)
	}
	cmd.Stderr = logFiles.stderrFile

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", processName, err)
	}

	return logFiles, nil
}
