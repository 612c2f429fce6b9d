package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Deferred is a single-assignment value that any number of goroutines may
// wait on. It settles exactly once, either resolved with a value or rejected
// with an error, and never changes afterwards.
type Deferred[T any] struct {
	name    string
	timeout time.Duration

	mu      sync.Mutex
	settled bool
	done    chan struct{}

	// val and err are written once under mu before done is closed and are
	// read only after done is closed.
	val T
	err error
}

// NewDeferred returns a pending Deferred. name identifies the attribute in
// timeout errors. A zero timeout makes Get wait for its context only.
func NewDeferred[T any](name string, timeout time.Duration) *Deferred[T] {
	if name == "" {
		panic("chainenv: deferred name must not be empty")
	}
	if timeout < 0 {
		panic(fmt.Sprintf("chainenv: deferred timeout must not be negative, got %s", timeout))
	}
	return &Deferred[T]{name: name, timeout: timeout, done: make(chan struct{})}
}

// Resolve settles d with v. It reports whether this call settled d.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. It reports whether this call settled d.
// Panics if err is nil.
func (d *Deferred[T]) Reject(err error) bool {
	if err == nil {
		panic("chainenv: Deferred.Reject called with nil error")
	}
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return false
	}
	d.val, d.err, d.settled = v, err, true
	close(d.done)
	return true
}

// Get returns the settled value or error. While d is pending it blocks until
// settlement, ctx is done, or the attribute timeout elapses; the timeout
// yields an *AttributeTimeoutError.
func (d *Deferred[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	default:
	}

	var expired <-chan time.Time
	if d.timeout > 0 {
		t := time.NewTimer(d.timeout)
		defer t.Stop()
		expired = t.C
	}

	var zero T
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		return zero, fmt.Errorf("get %q: %w", d.name, ctx.Err())
	case <-expired:
		return zero, &AttributeTimeoutError{Attribute: d.name, Timeout: d.timeout}
	}
}

// Settled reports whether d has been resolved or rejected.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on settlement.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Name returns the attribute name.
func (d *Deferred[T]) Name() string {
	return d.name
}
