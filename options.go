package chainenv

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("chainenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("chainenv: %s must not be empty", name))
	}
}

// requireLocalPaths panics unless every path is a non-empty path relative to
// the project directory that does not escape it.
func requireLocalPaths(name string, paths []string) {
	for _, p := range paths {
		if !filepath.IsLocal(p) {
			panic(fmt.Sprintf("chainenv: %s %q must be relative to the project directory", name, p))
		}
	}
}

// RegistryOption configures a Registry during construction via NewRegistry.
//
// Several With* functions panic on invalid input (negative sizes, empty
// paths, non-positive durations). Option values are typically compile-time
// constants, so an invalid value is a programmer error, the same way
// [regexp.MustCompile] treats a bad pattern.
type RegistryOption func(*registryConfig)

// WithMaxInstances caps the number of sandboxes that may be open at once.
// A sandbox holds its slot from Registry.New until Close. Registry.New
// returns ErrCapacityExceeded when the cap is reached. 0 means unlimited.
//
// Default: 10.
//
// Panics if n < 0.
func WithMaxInstances(n int) RegistryOption {
	if n < 0 {
		panic(fmt.Sprintf("chainenv: max instances must not be negative, got %d", n))
	}
	return func(c *registryConfig) {
		c.MaxInstances = n
	}
}

// WithBasePort gives the registry its own port counter starting at port.
// Without it, every registry in the process shares one counter starting at
// DefaultBasePort. Either way a port or network id already issued anywhere
// in the process is skipped, so none is handed out twice. Ports used by
// other processes are not tracked; use distinct base ports for test binaries
// that run side by side.
//
// Panics if port is not in 1..65535.
func WithBasePort(port int) RegistryOption {
	if port <= 0 || port > 65535 {
		panic(fmt.Sprintf("chainenv: base port must be in 1..65535, got %d", port))
	}
	return func(c *registryConfig) {
		c.BasePort = port
	}
}

// WithBaseDir sets the directory under which sandbox workspaces are created,
// as <dir>/contracts-sandbox/<network id>.
// If not set, defaults to filepath.Join(os.TempDir(), "chainenv").
// Panics if dir is empty.
func WithBaseDir(dir string) RegistryOption {
	requireNonEmpty("base directory", dir)
	return func(c *registryConfig) {
		c.BaseDir = dir
	}
}

// WithGanacheBinary sets the path to the ganache binary.
// Panics if binPath is empty.
func WithGanacheBinary(binPath string) RegistryOption {
	requireNonEmpty("ganache binary path", binPath)
	return func(c *registryConfig) {
		c.GanacheBinary = binPath
	}
}

// WithTruffleBinary sets the path to the truffle binary.
// Panics if binPath is empty.
func WithTruffleBinary(binPath string) RegistryOption {
	requireNonEmpty("truffle binary path", binPath)
	return func(c *registryConfig) {
		c.TruffleBinary = binPath
	}
}

// WithArtifactCache enables the compile cache stored in dir. Sandboxes whose
// Solidity sources, truffle config and compiler settings hash identically
// reuse a previous build instead of running the compiler. The cache is
// shared safely across processes.
//
// Panics if dir is empty.
func WithArtifactCache(dir string) RegistryOption {
	requireNonEmpty("artifact cache directory", dir)
	return func(c *registryConfig) {
		c.ArtifactCacheDir = dir
	}
}

// WithNetworkStartTimeout sets the maximum time allowed for a network to
// start accepting connections.
//
// Default: 1 minute.
//
// Panics if d <= 0.
func WithNetworkStartTimeout(d time.Duration) RegistryOption {
	requirePositive("network start timeout", d)
	return func(c *registryConfig) {
		c.NetworkStartTimeout = d
	}
}

// WithConnectTimeout bounds the client attach, including dial retries.
//
// Default: 7 seconds.
//
// Panics if d <= 0.
func WithConnectTimeout(d time.Duration) RegistryOption {
	requirePositive("connect timeout", d)
	return func(c *registryConfig) {
		c.ConnectTimeout = d
	}
}

// WithBuildTimeout bounds each of the compile and deploy steps.
//
// Default: 5 minutes.
//
// Panics if d <= 0.
func WithBuildTimeout(d time.Duration) RegistryOption {
	requirePositive("build timeout", d)
	return func(c *registryConfig) {
		c.BuildTimeout = d
	}
}

// WithStopTimeout sets the maximum time a network process is given to exit
// after SIGTERM before it is killed.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) RegistryOption {
	requirePositive("stop timeout", d)
	return func(c *registryConfig) {
		c.StopTimeout = d
	}
}

// SandboxOption configures a single sandbox created via Registry.New.
type SandboxOption func(*sandboxConfig)

// WithProjectDir sets the truffle project staged into the workspace.
// Defaults to the working directory.
// Panics if dir is empty.
func WithProjectDir(dir string) SandboxOption {
	requireNonEmpty("project directory", dir)
	return func(c *sandboxConfig) {
		c.ProjectDir = dir
	}
}

// WithCopyPaths adds project-relative paths copied into the workspace after
// the template files, e.g. installed Solidity libraries. They are copied
// concurrently. Repeated calls accumulate.
//
// Panics if any path is absolute or escapes the project directory.
func WithCopyPaths(paths ...string) SandboxOption {
	requireLocalPaths("copy path", paths)
	paths = slices.Clone(paths)
	return func(c *sandboxConfig) {
		c.CopyPaths = append(c.CopyPaths, paths...)
	}
}

// WithExtract lists the contract names whose deployed addresses are
// collected from the migration output. Repeated calls accumulate.
//
// Panics if any name is empty.
func WithExtract(names ...string) SandboxOption {
	for _, n := range names {
		requireNonEmpty("contract name", n)
	}
	names = slices.Clone(names)
	return func(c *sandboxConfig) {
		c.Extract = append(c.Extract, names...)
	}
}

// WithTemplateFiles replaces the project paths that must be present and are
// copied into every workspace.
//
// Default: truffle-config.js, contracts, migrations.
//
// Panics if paths is empty or any path is absolute or escapes the project
// directory.
func WithTemplateFiles(paths ...string) SandboxOption {
	if len(paths) == 0 {
		panic("chainenv: template files must not be empty")
	}
	requireLocalPaths("template file", paths)
	paths = slices.Clone(paths)
	return func(c *sandboxConfig) {
		c.TemplateFiles = paths
	}
}

// WithServerLog forwards every ganache log line to the chainenv logger at
// info level, tagged with the sandbox's network id.
func WithServerLog(enabled bool) SandboxOption {
	return func(c *sandboxConfig) {
		c.ServerLog = enabled
	}
}

// WithAttributeTimeout bounds each attribute read on the sandbox. A read that
// exceeds it fails with an *AttributeTimeoutError, which means "not available
// yet" as opposed to the *StageError of a failed sandbox.
//
// Default: 5 minutes.
//
// Panics if d <= 0.
func WithAttributeTimeout(d time.Duration) SandboxOption {
	requirePositive("attribute timeout", d)
	return func(c *sandboxConfig) {
		c.AttributeTimeout = d
	}
}

// WithKeepWorkspace leaves the workspace on disk after Close, for
// inspecting build output of a failed test.
func WithKeepWorkspace(keep bool) SandboxOption {
	return func(c *sandboxConfig) {
		c.KeepWorkspace = keep
	}
}
