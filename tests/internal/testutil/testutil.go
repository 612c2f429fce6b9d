//go:build integration

// Package testutil provides shared helpers for integration test packages.
package testutil

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/giantswarm/chainenv"
)

// CloseTimeout bounds Sandbox.Close in helpers.
const CloseTimeout = 2 * time.Minute

// ProjectDir returns the absolute path of the named project under
// tests/testdata.
func ProjectDir(name string) string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("testutil: cannot locate source file")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", name)
}

// NewSandbox creates a sandbox of the MetaCoin project on reg and closes it
// when the test ends.
//
//nolint:ireturn // Test helper returns the public Sandbox interface.
func NewSandbox(t *testing.T, reg *chainenv.Registry, opts ...chainenv.SandboxOption) chainenv.Sandbox {
	t.Helper()

	base := []chainenv.SandboxOption{
		chainenv.WithProjectDir(ProjectDir("metacoin")),
		chainenv.WithExtract("MetaCoin", "ConvertLib"),
	}
	sb, err := reg.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { CloseSandbox(t, sb) })
	return sb
}

// CloseSandbox closes sb within CloseTimeout and reports errors on t.
func CloseSandbox(t *testing.T, sb chainenv.Sandbox) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()
	if err := sb.Close(ctx); err != nil {
		t.Errorf("Close(%s) failed: %v", sb.Network(), err)
	}
}

// SetupTestLogging configures slog based on the CHAINENV_LOG_LEVEL environment
// variable. This only affects test runs - the library itself inherits the
// application's logging config.
func SetupTestLogging() {
	levelStr := os.Getenv("CHAINENV_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	chainenv.SetLogger(slog.Default().With("component", "chainenv"))
}

// RequireBinariesOrExit checks that ganache and truffle are available,
// exiting the process (via os.Exit) if not. This is used in TestMain where
// *testing.T is not available.
func RequireBinariesOrExit() {
	for _, bin := range []struct {
		name string
		hint string
	}{
		{chainenv.DefaultGanacheBinary, "Install ganache: npm install -g ganache-cli"},
		{chainenv.DefaultTruffleBinary, "Install truffle: npm install -g truffle"},
	} {
		if _, err := exec.LookPath(bin.name); err != nil {
			fmt.Fprintf(os.Stderr, "%s binary not found in PATH\n%s\n", bin.name, bin.hint)
			os.Exit(1)
		}
		cmd := exec.Command(bin.name, "--version") //nolint:gosec // G204: binary names are hardcoded constants
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "%s binary exists but not working properly: %v\n", bin.name, err)
			os.Exit(1)
		}
	}
}

// RunTestMain sets up signal handling for graceful shutdown, runs all tests,
// then closes reg and removes tmpDir. Returns the exit code.
func RunTestMain(m *testing.M, reg *chainenv.Registry, tmpDir string) int {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh) // Restore default handler so a second signal force-kills
			fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
			_ = reg.Close()
			_ = os.RemoveAll(tmpDir)
			os.Exit(1)
		case <-done:
			return
		}
	}()

	code := m.Run()

	signal.Stop(sigCh)
	close(done)
	if stats := reg.Stats(); stats.Running > 0 {
		fmt.Fprintf(os.Stderr, "%d networks still running; a test did not close its sandbox\n", stats.Running)
		code = 1
	}
	if err := reg.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Close error: %v\n", err)
	}
	_ = os.RemoveAll(tmpDir)

	return code
}

// SetupAndRun handles the standard TestMain boilerplate: flag parsing,
// logging setup, binary checks, temp dir creation and registry creation with
// WithBaseDir prepended, test execution, and cleanup. The created registry is
// assigned to *reg. This function calls os.Exit and never returns.
func SetupAndRun(m *testing.M, reg **chainenv.Registry, prefix string, opts ...chainenv.RegistryOption) {
	flag.Parse()
	SetupTestLogging()
	RequireBinariesOrExit()

	tmpDir, err := os.MkdirTemp("", prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	baseOpts := []chainenv.RegistryOption{
		chainenv.WithBaseDir(tmpDir),
		chainenv.WithArtifactCache(filepath.Join(tmpDir, "artifact-cache")),
	}
	created := chainenv.NewRegistry(append(baseOpts, opts...)...)
	*reg = created

	os.Exit(RunTestMain(m, created, tmpDir))
}
