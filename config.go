package chainenv

import (
	"os"
	"path/filepath"
	"time"

	"github.com/giantswarm/chainenv/internal/core"
)

// registryConfig holds the settings applied by RegistryOption. Fields not
// consumed by core.RegistryConfig configure the concrete toolchain and the
// defaults of every sandbox created by the registry.
type registryConfig struct {
	MaxInstances int
	// BasePort is 0 unless WithBasePort was given; 0 selects the shared
	// process-wide allocator.
	BasePort int
	BaseDir  string

	GanacheBinary    string
	TruffleBinary    string
	ArtifactCacheDir string

	NetworkStartTimeout time.Duration
	ConnectTimeout      time.Duration
	BuildTimeout        time.Duration
	StopTimeout         time.Duration
}

// sandboxConfig holds the settings applied by SandboxOption. It embeds
// core.InstanceConfig, keeping internal/core types out of the public API
// signature while avoiding field-by-field duplication.
type sandboxConfig struct {
	core.InstanceConfig
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		MaxInstances:        DefaultMaxInstances,
		BaseDir:             filepath.Join(os.TempDir(), DefaultBaseDirName),
		GanacheBinary:       DefaultGanacheBinary,
		TruffleBinary:       DefaultTruffleBinary,
		NetworkStartTimeout: DefaultNetworkStartTimeout,
		ConnectTimeout:      DefaultConnectTimeout,
		BuildTimeout:        DefaultBuildTimeout,
		StopTimeout:         DefaultStopTimeout,
	}
}

// defaultSandboxConfig derives the per-sandbox defaults from the registry
// settings. ProjectDir defaults to the working directory.
func (c registryConfig) defaultSandboxConfig() sandboxConfig {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return sandboxConfig{core.InstanceConfig{
		ProjectDir:            wd,
		BaseDir:               c.BaseDir,
		TemplateFiles:         DefaultTemplateFiles(),
		OptionalTemplateFiles: DefaultOptionalTemplateFiles(),
		Accounts:              DefaultAccounts,
		DefaultBalanceEther:   DefaultBalanceEther,
		AttributeTimeout:      DefaultAttributeTimeout,
		NetworkStartTimeout:   c.NetworkStartTimeout,
		ConnectTimeout:        c.ConnectTimeout,
		BuildTimeout:          c.BuildTimeout,
	}}
}
