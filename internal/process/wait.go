package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Sentinel errors returned by WaitReady.
var (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")

	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = errors.New("process exited before becoming ready")
)

// ReadinessCheck reports whether a process is ready. attempt is 1-based.
// A non-nil error aborts polling.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	Interval      time.Duration
	Timeout       time.Duration
	Name          string // e.g. "ganache"
	Port          int
	Logger        *slog.Logger    // Optional, defaults to slog.Default()
	ProcessExited <-chan struct{} // If non-nil, polling aborts once it is closed
}

// WaitReady polls check every Interval until it reports ready, returns an
// error, the process exits, or Timeout elapses.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if cfg.Name == "" {
		return errors.New("wait ready: name must not be empty")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// The condition is invoked sequentially, so attempt needs no locking.
	attempt := 0
	if err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true,
		func(pollCtx context.Context) (bool, error) {
			// A process that died on startup (e.g. port already bound)
			// should not be polled for the whole timeout.
			if cfg.ProcessExited != nil {
				select {
				case <-cfg.ProcessExited:
					return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
				default:
				}
			}

			attempt++
			ready, err := check(pollCtx, attempt)
			if err != nil {
				return false, err
			}
			if ready {
				log.Debug("wait succeeded", "name", cfg.Name, "port", cfg.Port, "attempt", attempt)
			}
			return ready, nil
		}); err != nil {
		return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, err)
	}
	return nil
}
