package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/giantswarm/chainenv/internal/netutil"
)

// RegistryConfig holds configuration for a Registry.
type RegistryConfig struct {
	// MaxInstances caps the number of instances that have been created and
	// not yet closed. 0 means unlimited.
	MaxInstances int

	// Allocator issues ports and network ids. No two allocators in a process
	// hand out the same port or id.
	Allocator *netutil.Allocator
}

// Validate checks all RegistryConfig invariants and returns an error
// describing every violation found.
func (c RegistryConfig) Validate() error {
	var errs []error
	if c.MaxInstances < 0 {
		errs = append(errs, fmt.Errorf("max instances must not be negative, got %d", c.MaxInstances))
	}
	if c.Allocator == nil {
		errs = append(errs, errors.New("allocator must not be nil"))
	}
	return errors.Join(errs...)
}

// InstanceConfig holds configuration for one Instance. All fields are
// immutable after construction.
type InstanceConfig struct {
	// ProjectDir is the truffle project the workspace is staged from.
	ProjectDir string
	// BaseDir holds the per-instance workspaces under contracts-sandbox/.
	BaseDir string
	// TemplateFiles are copied sequentially from ProjectDir; a missing entry
	// fails the workspace stage.
	TemplateFiles []string
	// OptionalTemplateFiles are copied when they exist in ProjectDir.
	OptionalTemplateFiles []string
	// CopyPaths are extra project-relative paths copied concurrently after
	// the templates.
	CopyPaths []string
	// Extract lists the contract names scraped from deployment output.
	Extract []string

	// ServerLog forwards network log lines to the instance logger.
	ServerLog bool
	// KeepWorkspace leaves the workspace on disk after Close.
	KeepWorkspace bool

	Accounts            int
	DefaultBalanceEther uint64

	// AttributeTimeout bounds each attribute read. 0 waits for the
	// caller's context only.
	AttributeTimeout time.Duration
	// NetworkStartTimeout bounds the network stage.
	NetworkStartTimeout time.Duration
	// ConnectTimeout bounds the attach and publisher stages.
	ConnectTimeout time.Duration
	// BuildTimeout bounds each of the compile and deploy stages.
	BuildTimeout time.Duration
}

// Validate checks all InstanceConfig invariants and returns an error
// describing every violation found.
func (c InstanceConfig) Validate() error {
	var errs []error

	if c.ProjectDir == "" {
		errs = append(errs, errors.New("project directory must not be empty"))
	}
	if c.BaseDir == "" {
		errs = append(errs, errors.New("base directory must not be empty"))
	}
	for _, p := range c.CopyPaths {
		if !filepath.IsLocal(p) {
			errs = append(errs, fmt.Errorf("copy path %q must be relative to the project directory", p))
		}
	}
	for _, p := range append(append([]string(nil), c.TemplateFiles...), c.OptionalTemplateFiles...) {
		if !filepath.IsLocal(p) {
			errs = append(errs, fmt.Errorf("template file %q must be relative to the project directory", p))
		}
	}
	if c.Accounts <= 0 {
		errs = append(errs, fmt.Errorf("accounts must be greater than 0, got %d", c.Accounts))
	}
	if c.AttributeTimeout < 0 {
		errs = append(errs, fmt.Errorf("attribute timeout must not be negative, got %s", c.AttributeTimeout))
	}
	if c.NetworkStartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("network start timeout must be greater than 0, got %s", c.NetworkStartTimeout))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect timeout must be greater than 0, got %s", c.ConnectTimeout))
	}
	if c.BuildTimeout <= 0 {
		errs = append(errs, fmt.Errorf("build timeout must be greater than 0, got %s", c.BuildTimeout))
	}

	return errors.Join(errs...)
}
