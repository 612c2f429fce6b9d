package core

import (
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/chainenv/internal/netutil"
)

func TestRegistryConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (RegistryConfig{Allocator: netutil.NewAllocator(1111)}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := RegistryConfig{MaxInstances: -3}.Validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, part := range []string{"max instances", "allocator"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q should contain %q", err.Error(), part)
		}
	}
}

func TestInstanceConfig_Validate(t *testing.T) {
	t.Parallel()
	validConfig := func() InstanceConfig {
		return InstanceConfig{
			ProjectDir:          "/tmp/project",
			BaseDir:             "/tmp/base",
			TemplateFiles:       []string{"truffle-config.js", "contracts", "migrations"},
			CopyPaths:           []string{"node_modules/openzeppelin-solidity"},
			Accounts:            10,
			AttributeTimeout:    5 * time.Minute,
			NetworkStartTimeout: time.Minute,
			ConnectTimeout:      7 * time.Second,
			BuildTimeout:        5 * time.Minute,
		}
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("zero attribute timeout is valid", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.AttributeTimeout = 0
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := map[string]struct {
		modify       func(c *InstanceConfig)
		wantContains string
	}{
		"empty project dir": {
			modify:       func(c *InstanceConfig) { c.ProjectDir = "" },
			wantContains: "project directory",
		},
		"empty base dir": {
			modify:       func(c *InstanceConfig) { c.BaseDir = "" },
			wantContains: "base directory",
		},
		"absolute copy path": {
			modify:       func(c *InstanceConfig) { c.CopyPaths = []string{"/etc"} },
			wantContains: "copy path",
		},
		"escaping copy path": {
			modify:       func(c *InstanceConfig) { c.CopyPaths = []string{"../outside"} },
			wantContains: "copy path",
		},
		"escaping template": {
			modify:       func(c *InstanceConfig) { c.TemplateFiles = []string{"../truffle.js"} },
			wantContains: "template file",
		},
		"absolute optional template": {
			modify:       func(c *InstanceConfig) { c.OptionalTemplateFiles = []string{"/chainenv.yaml"} },
			wantContains: "template file",
		},
		"zero accounts": {
			modify:       func(c *InstanceConfig) { c.Accounts = 0 },
			wantContains: "accounts",
		},
		"negative attribute timeout": {
			modify:       func(c *InstanceConfig) { c.AttributeTimeout = -1 },
			wantContains: "attribute timeout",
		},
		"zero network start timeout": {
			modify:       func(c *InstanceConfig) { c.NetworkStartTimeout = 0 },
			wantContains: "network start timeout",
		},
		"zero connect timeout": {
			modify:       func(c *InstanceConfig) { c.ConnectTimeout = 0 },
			wantContains: "connect timeout",
		},
		"negative build timeout": {
			modify:       func(c *InstanceConfig) { c.BuildTimeout = -time.Second },
			wantContains: "build timeout",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Errorf("error %q should contain %q", err.Error(), tc.wantContains)
			}
		})
	}

	t.Run("multiple errors joined", func(t *testing.T) {
		t.Parallel()
		err := InstanceConfig{}.Validate()
		if err == nil {
			t.Fatal("expected error for zero-value config")
		}
		for _, part := range []string{
			"project directory",
			"base directory",
			"accounts",
			"network start timeout",
			"connect timeout",
			"build timeout",
		} {
			if !strings.Contains(err.Error(), part) {
				t.Errorf("error %q should contain %q", err.Error(), part)
			}
		}
	})
}

func TestToolchain_Validate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	if err := env.tools().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Toolchain{}.Validate()
	if err == nil {
		t.Fatal("expected error for empty toolchain")
	}
	for _, part := range []string{"stager", "config loader", "network starter", "dialer", "compiler", "deployer"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q should contain %q", err.Error(), part)
		}
	}
}
