package chainenv

import "time"

// Default configuration values for NewRegistry and Registry.New.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultBuildTimeout).
const (
	// DefaultBasePort is the first port handed out by the process-wide
	// allocator. Ports are never reused within a process.
	DefaultBasePort = 1111

	// DefaultMaxInstances caps the number of sandboxes a registry keeps
	// open at once. Set to 0 for unlimited.
	DefaultMaxInstances = 10

	// DefaultBaseDirName is the directory name under the system temp
	// directory holding sandbox workspaces. The full path is computed as
	// filepath.Join(os.TempDir(), DefaultBaseDirName).
	DefaultBaseDirName = "chainenv"

	// DefaultGanacheBinary is the binary name used to locate ganache in PATH.
	DefaultGanacheBinary = "ganache-cli"

	// DefaultTruffleBinary is the binary name used to locate truffle in PATH.
	DefaultTruffleBinary = "truffle"

	// DefaultAccounts is the number of funded accounts on each network.
	DefaultAccounts = 10

	// DefaultBalanceEther is the starting balance of every account.
	DefaultBalanceEther = 1_000_000

	// DefaultAttributeTimeout bounds a single attribute read on a sandbox.
	// It must cover the whole pipeline when a read is issued right after
	// Registry.New, which is dominated by compile and deploy.
	DefaultAttributeTimeout = 5 * time.Minute

	// DefaultNetworkStartTimeout is the maximum time allowed for ganache to
	// start accepting connections.
	DefaultNetworkStartTimeout = time.Minute

	// DefaultConnectTimeout bounds the client attach and the account and
	// network id queries that follow it.
	DefaultConnectTimeout = 7 * time.Second

	// DefaultBuildTimeout bounds each of the compile and deploy steps.
	DefaultBuildTimeout = 5 * time.Minute

	// DefaultStopTimeout is the maximum time allowed for a network process
	// to stop gracefully before it is killed.
	DefaultStopTimeout = 10 * time.Second
)

// DefaultTemplateFiles are the project paths copied into every workspace.
// A missing entry fails the sandbox.
func DefaultTemplateFiles() []string {
	return []string{"truffle-config.js", "contracts", "migrations"}
}

// DefaultOptionalTemplateFiles are copied into the workspace when present in
// the project directory.
func DefaultOptionalTemplateFiles() []string {
	return []string{"truffle.js", "chainenv.yaml"}
}
