package chainenv_test

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/giantswarm/chainenv"
)

// panicTestCase defines a test case for option validation panic tests.
type panicTestCase struct {
	name     string
	panics   bool
	panicMsg string
	fn       func()
}

// requirePanics calls fn and verifies it panics (or not) with the expected message.
func requirePanics(t *testing.T, shouldPanic bool, wantMsg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if shouldPanic && r == nil {
			t.Fatal("expected panic but didn't get one")
		}
		if !shouldPanic && r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
		if shouldPanic && r != nil {
			msg := fmt.Sprint(r)
			if msg != wantMsg {
				t.Fatalf("expected panic message %q, got %q", wantMsg, msg)
			}
		}
	}()
	fn()
}

// runPanicTests runs a slice of panic test cases using requirePanics.
func runPanicTests(t *testing.T, tests []panicTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requirePanics(t, tt.panics, tt.panicMsg, tt.fn)
		})
	}
}

func TestDurationOptionsPanicOnInvalid(t *testing.T) {
	t.Parallel()

	opts := map[string]func(time.Duration){
		"network start timeout": func(d time.Duration) { chainenv.WithNetworkStartTimeout(d) },
		"connect timeout":       func(d time.Duration) { chainenv.WithConnectTimeout(d) },
		"build timeout":         func(d time.Duration) { chainenv.WithBuildTimeout(d) },
		"stop timeout":          func(d time.Duration) { chainenv.WithStopTimeout(d) },
		"attribute timeout":     func(d time.Duration) { chainenv.WithAttributeTimeout(d) },
	}

	for name, apply := range opts {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runPanicTests(t, []panicTestCase{
				{
					name:     "zero",
					panics:   true,
					panicMsg: "chainenv: " + name + " must be greater than 0, got 0s",
					fn:       func() { apply(0) },
				},
				{
					name:     "negative",
					panics:   true,
					panicMsg: "chainenv: " + name + " must be greater than 0, got -1s",
					fn:       func() { apply(-time.Second) },
				},
				{name: "valid", fn: func() { apply(time.Second) }},
			})
		})
	}
}

func TestWithMaxInstancesPanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "negative",
			panics:   true,
			panicMsg: "chainenv: max instances must not be negative, got -1",
			fn:       func() { chainenv.WithMaxInstances(-1) },
		},
		{name: "zero_unlimited", fn: func() { chainenv.WithMaxInstances(0) }},
		{name: "valid", fn: func() { chainenv.WithMaxInstances(5) }},
	})
}

func TestWithBasePortPanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "zero",
			panics:   true,
			panicMsg: "chainenv: base port must be in 1..65535, got 0",
			fn:       func() { chainenv.WithBasePort(0) },
		},
		{
			name:     "too large",
			panics:   true,
			panicMsg: "chainenv: base port must be in 1..65535, got 70000",
			fn:       func() { chainenv.WithBasePort(70000) },
		},
		{name: "valid", fn: func() { chainenv.WithBasePort(8545) }},
	})
}

func TestWithEmptyStringOptionsPanic(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "base directory",
			panics:   true,
			panicMsg: "chainenv: base directory must not be empty",
			fn:       func() { chainenv.WithBaseDir("") },
		},
		{
			name:     "ganache binary",
			panics:   true,
			panicMsg: "chainenv: ganache binary path must not be empty",
			fn:       func() { chainenv.WithGanacheBinary("") },
		},
		{
			name:     "truffle binary",
			panics:   true,
			panicMsg: "chainenv: truffle binary path must not be empty",
			fn:       func() { chainenv.WithTruffleBinary("") },
		},
		{
			name:     "artifact cache",
			panics:   true,
			panicMsg: "chainenv: artifact cache directory must not be empty",
			fn:       func() { chainenv.WithArtifactCache("") },
		},
		{
			name:     "project directory",
			panics:   true,
			panicMsg: "chainenv: project directory must not be empty",
			fn:       func() { chainenv.WithProjectDir("") },
		},
		{
			name:     "contract name",
			panics:   true,
			panicMsg: "chainenv: contract name must not be empty",
			fn:       func() { chainenv.WithExtract("MetaCoin", "") },
		},
	})
}

func TestPathOptionsPanicOnNonLocal(t *testing.T) {
	t.Parallel()
	runPanicTests(t, []panicTestCase{
		{
			name:     "absolute copy path",
			panics:   true,
			panicMsg: `chainenv: copy path "/usr/lib" must be relative to the project directory`,
			fn:       func() { chainenv.WithCopyPaths("/usr/lib") },
		},
		{
			name:     "escaping copy path",
			panics:   true,
			panicMsg: `chainenv: copy path "../lib" must be relative to the project directory`,
			fn:       func() { chainenv.WithCopyPaths("node_modules", "../lib") },
		},
		{
			name:     "empty template list",
			panics:   true,
			panicMsg: "chainenv: template files must not be empty",
			fn:       func() { chainenv.WithTemplateFiles() },
		},
		{
			name:     "escaping template",
			panics:   true,
			panicMsg: `chainenv: template file "../truffle.js" must be relative to the project directory`,
			fn:       func() { chainenv.WithTemplateFiles("../truffle.js") },
		},
		{name: "valid copy paths", fn: func() { chainenv.WithCopyPaths("node_modules/openzeppelin-solidity") }},
		{name: "valid templates", fn: func() { chainenv.WithTemplateFiles("truffle.js", "contracts") }},
	})
}

func TestRegistryOptionDefaults(t *testing.T) {
	t.Parallel()

	snap := chainenv.ApplyRegistryOptionsForTesting()

	want := chainenv.RegistryConfigSnapshot{
		MaxInstances:        chainenv.DefaultMaxInstances,
		BaseDir:             filepath.Join(os.TempDir(), chainenv.DefaultBaseDirName),
		GanacheBinary:       chainenv.DefaultGanacheBinary,
		TruffleBinary:       chainenv.DefaultTruffleBinary,
		NetworkStartTimeout: chainenv.DefaultNetworkStartTimeout,
		ConnectTimeout:      chainenv.DefaultConnectTimeout,
		BuildTimeout:        chainenv.DefaultBuildTimeout,
		StopTimeout:         chainenv.DefaultStopTimeout,
	}
	if snap != want {
		t.Errorf("defaults = %+v, want %+v", snap, want)
	}
}

func TestRegistryOptionOverrides(t *testing.T) {
	t.Parallel()

	snap := chainenv.ApplyRegistryOptionsForTesting(
		chainenv.WithMaxInstances(3),
		chainenv.WithBasePort(9000),
		chainenv.WithBaseDir("/custom/base"),
		chainenv.WithGanacheBinary("/opt/ganache"),
		chainenv.WithTruffleBinary("/opt/truffle"),
		chainenv.WithArtifactCache("/custom/cache"),
		chainenv.WithNetworkStartTimeout(2*time.Minute),
		chainenv.WithConnectTimeout(3*time.Second),
		chainenv.WithBuildTimeout(10*time.Minute),
		chainenv.WithStopTimeout(time.Second),
	)

	want := chainenv.RegistryConfigSnapshot{
		MaxInstances:        3,
		BasePort:            9000,
		BaseDir:             "/custom/base",
		GanacheBinary:       "/opt/ganache",
		TruffleBinary:       "/opt/truffle",
		ArtifactCacheDir:    "/custom/cache",
		NetworkStartTimeout: 2 * time.Minute,
		ConnectTimeout:      3 * time.Second,
		BuildTimeout:        10 * time.Minute,
		StopTimeout:         time.Second,
	}
	if snap != want {
		t.Errorf("overrides = %+v, want %+v", snap, want)
	}
}

func TestSandboxOptionDefaults(t *testing.T) {
	t.Parallel()

	cfg := chainenv.ApplySandboxOptionsForTesting([]chainenv.RegistryOption{
		chainenv.WithBaseDir("/base"),
		chainenv.WithConnectTimeout(2 * time.Second),
	})

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ProjectDir != wd {
		t.Errorf("ProjectDir = %q, want working directory %q", cfg.ProjectDir, wd)
	}
	if cfg.BaseDir != "/base" {
		t.Errorf("BaseDir = %q, want registry base dir", cfg.BaseDir)
	}
	if !slices.Equal(cfg.TemplateFiles, chainenv.DefaultTemplateFiles()) {
		t.Errorf("TemplateFiles = %v", cfg.TemplateFiles)
	}
	if !slices.Equal(cfg.OptionalTemplateFiles, chainenv.DefaultOptionalTemplateFiles()) {
		t.Errorf("OptionalTemplateFiles = %v", cfg.OptionalTemplateFiles)
	}
	if cfg.Accounts != chainenv.DefaultAccounts || cfg.DefaultBalanceEther != chainenv.DefaultBalanceEther {
		t.Errorf("Accounts/Balance = %d/%d", cfg.Accounts, cfg.DefaultBalanceEther)
	}
	if cfg.AttributeTimeout != chainenv.DefaultAttributeTimeout {
		t.Errorf("AttributeTimeout = %s", cfg.AttributeTimeout)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %s, want registry override", cfg.ConnectTimeout)
	}
	if cfg.ServerLog || cfg.KeepWorkspace || len(cfg.CopyPaths) != 0 || len(cfg.Extract) != 0 {
		t.Errorf("unexpected non-default fields: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default sandbox config is invalid: %v", err)
	}
}

func TestSandboxOptionOverrides(t *testing.T) {
	t.Parallel()

	cfg := chainenv.ApplySandboxOptionsForTesting(nil,
		chainenv.WithProjectDir("/project"),
		chainenv.WithCopyPaths("node_modules/a"),
		chainenv.WithCopyPaths("node_modules/b"),
		chainenv.WithExtract("MetaCoin"),
		chainenv.WithExtract("ConvertLib"),
		chainenv.WithTemplateFiles("truffle.js", "contracts"),
		chainenv.WithServerLog(true),
		chainenv.WithAttributeTimeout(time.Minute),
		chainenv.WithKeepWorkspace(true),
	)

	if cfg.ProjectDir != "/project" {
		t.Errorf("ProjectDir = %q", cfg.ProjectDir)
	}
	if want := []string{"node_modules/a", "node_modules/b"}; !slices.Equal(cfg.CopyPaths, want) {
		t.Errorf("CopyPaths = %v, want %v", cfg.CopyPaths, want)
	}
	if want := []string{"MetaCoin", "ConvertLib"}; !slices.Equal(cfg.Extract, want) {
		t.Errorf("Extract = %v, want %v", cfg.Extract, want)
	}
	if want := []string{"truffle.js", "contracts"}; !slices.Equal(cfg.TemplateFiles, want) {
		t.Errorf("TemplateFiles = %v, want %v", cfg.TemplateFiles, want)
	}
	if !cfg.ServerLog || !cfg.KeepWorkspace {
		t.Error("ServerLog and KeepWorkspace should be set")
	}
	if cfg.AttributeTimeout != time.Minute {
		t.Errorf("AttributeTimeout = %s", cfg.AttributeTimeout)
	}
}

func TestOptionArgumentsAreCopied(t *testing.T) {
	t.Parallel()

	paths := []string{"node_modules/a"}
	opt := chainenv.WithCopyPaths(paths...)
	paths[0] = "mutated"

	cfg := chainenv.ApplySandboxOptionsForTesting(nil, opt)
	if cfg.CopyPaths[0] != "node_modules/a" {
		t.Errorf("CopyPaths[0] = %q, option aliases the caller's slice", cfg.CopyPaths[0])
	}
}
