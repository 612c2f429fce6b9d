package core

import (
	"fmt"
	"time"

	"github.com/giantswarm/chainenv/internal/sentinel"
)

// Error kinds. Every pipeline failure matches exactly one stage kind via
// errors.Is, in addition to its underlying cause.
const (
	ErrWorkspaceStage    = sentinel.Error("workspace staging failed")
	ErrConfigLoad        = sentinel.Error("project config load failed")
	ErrNetworkStart      = sentinel.Error("network start failed")
	ErrConnection        = sentinel.Error("network connection failed")
	ErrConnectionTimeout = sentinel.Error("network connection timed out")
	ErrCompile           = sentinel.Error("contract compilation failed")
	ErrDeploy            = sentinel.Error("contract deployment failed")
	ErrAttributeTimeout  = sentinel.Error("attribute not available before timeout")
	ErrCapacityExceeded  = sentinel.Error("maximum number of instances reached")
	ErrNoAccounts        = sentinel.Error("network reported no accounts")
	ErrForeignNetwork    = sentinel.Error("endpoint serves a different network")
)

// Stage identifies one step of the initialization pipeline.
type Stage int

// Pipeline stages in execution order.
const (
	StageWorkspace Stage = iota + 1
	StageConfigure
	StageNetwork
	StageAttach
	StagePublisher
	StageCompile
	StageDeploy
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageWorkspace:
		return "workspace"
	case StageConfigure:
		return "configure"
	case StageNetwork:
		return "network"
	case StageAttach:
		return "attach"
	case StagePublisher:
		return "publisher"
	case StageCompile:
		return "compile"
	case StageDeploy:
		return "deploy"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Kind returns the error kind reported for failures in s.
func (s Stage) Kind() error {
	switch s {
	case StageWorkspace:
		return ErrWorkspaceStage
	case StageConfigure:
		return ErrConfigLoad
	case StageNetwork:
		return ErrNetworkStart
	case StageAttach, StagePublisher:
		return ErrConnection
	case StageCompile:
		return ErrCompile
	case StageDeploy:
		return ErrDeploy
	default:
		return nil
	}
}

// StageError is the terminal error of a failed pipeline. The same value is
// delivered to every attribute read that was still pending.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v: %v", e.Stage, e.Stage.Kind(), e.Err)
}

// Unwrap exposes both the stage kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if kind := e.Stage.Kind(); kind != nil {
		return []error{kind, e.Err}
	}
	return []error{e.Err}
}

// AttributeTimeoutError reports an attribute read that gave up waiting. It
// means "not available yet", as opposed to a StageError which means "never".
type AttributeTimeoutError struct {
	Attribute string
	Timeout   time.Duration
}

func (e *AttributeTimeoutError) Error() string {
	return fmt.Sprintf("cannot get %q: %v after %s", e.Attribute, ErrAttributeTimeout, e.Timeout)
}

// Unwrap returns ErrAttributeTimeout.
func (e *AttributeTimeoutError) Unwrap() error {
	return ErrAttributeTimeout
}
