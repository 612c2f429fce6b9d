package chainenv

import "github.com/giantswarm/chainenv/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
//
// A failed sandbox reports a *StageError, which matches exactly one of the
// stage kinds below as well as the underlying cause.
const (
	// ErrWorkspaceStage reports a failure copying the project into the
	// workspace.
	ErrWorkspaceStage = core.ErrWorkspaceStage

	// ErrConfigLoad reports an unreadable or invalid chainenv.yaml.
	ErrConfigLoad = core.ErrConfigLoad

	// ErrNetworkStart reports a ganache process that failed to start or
	// never accepted connections, e.g. because its port was taken.
	ErrNetworkStart = core.ErrNetworkStart

	// ErrConnection reports a failure attaching to the network or querying
	// its accounts.
	ErrConnection = core.ErrConnection

	// ErrConnectionTimeout is matched, together with ErrConnection, when
	// the attach did not succeed within the connect timeout.
	ErrConnectionTimeout = core.ErrConnectionTimeout

	// ErrCompile reports a failed contract compilation.
	ErrCompile = core.ErrCompile

	// ErrDeploy reports failed migrations.
	ErrDeploy = core.ErrDeploy

	// ErrNoAccounts is matched, together with ErrConnection, when the
	// network reported an empty account list.
	ErrNoAccounts = core.ErrNoAccounts

	// ErrForeignNetwork is matched, together with ErrConnection, when the
	// endpoint answers with a network id other than the one the sandbox
	// started, e.g. because another process held its port.
	ErrForeignNetwork = core.ErrForeignNetwork

	// ErrAttributeTimeout is matched by *AttributeTimeoutError.
	ErrAttributeTimeout = core.ErrAttributeTimeout

	// ErrCapacityExceeded is returned by Registry.New when the registry
	// already holds its maximum number of open sandboxes.
	ErrCapacityExceeded = core.ErrCapacityExceeded
)

// Stage identifies one step of sandbox initialization.
type Stage = core.Stage

// Initialization stages in execution order.
const (
	StageWorkspace = core.StageWorkspace
	StageConfigure = core.StageConfigure
	StageNetwork   = core.StageNetwork
	StageAttach    = core.StageAttach
	StagePublisher = core.StagePublisher
	StageCompile   = core.StageCompile
	StageDeploy    = core.StageDeploy
)

// StageError is the terminal error of a failed sandbox. Use errors.As to
// find the failed Stage.
type StageError = core.StageError

// AttributeTimeoutError reports a read that gave up waiting for a value the
// sandbox had not produced yet.
type AttributeTimeoutError = core.AttributeTimeoutError
