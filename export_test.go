package chainenv

import (
	"time"

	"github.com/giantswarm/chainenv/internal/core"
)

// NewRegistryWithToolchain creates a Registry backed by tools instead of the
// ganache and truffle binaries. Exported only for package chainenv_test.
func NewRegistryWithToolchain(tools core.Toolchain, opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newRegistry(cfg, tools, nil)
}

// RegistryConfigSnapshot holds a copy of registryConfig fields for test
// assertions.
type RegistryConfigSnapshot struct {
	MaxInstances        int
	BasePort            int
	BaseDir             string
	GanacheBinary       string
	TruffleBinary       string
	ArtifactCacheDir    string
	NetworkStartTimeout time.Duration
	ConnectTimeout      time.Duration
	BuildTimeout        time.Duration
	StopTimeout         time.Duration
}

// ApplyRegistryOptionsForTesting creates a default registryConfig, applies
// opts, and returns a snapshot of the result.
func ApplyRegistryOptionsForTesting(opts ...RegistryOption) RegistryConfigSnapshot {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return RegistryConfigSnapshot(cfg)
}

// ApplySandboxOptionsForTesting derives sandbox defaults from the default
// registry config with regOpts applied, then applies opts.
func ApplySandboxOptionsForTesting(regOpts []RegistryOption, opts ...SandboxOption) core.InstanceConfig {
	rc := defaultRegistryConfig()
	for _, opt := range regOpts {
		opt(&rc)
	}
	cfg := rc.defaultSandboxConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.InstanceConfig
}
