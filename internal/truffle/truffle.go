package truffle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/chainenv/internal/process"
	"github.com/giantswarm/chainenv/internal/project"
)

// DefaultBinary is the truffle executable looked up on PATH.
const DefaultBinary = "truffle"

// NetworkFileEnv names the environment variable carrying the network file path.
const NetworkFileEnv = "CHAINENV_NETWORK_FILE"

// Tool runs truffle commands.
type Tool struct {
	Binary string       // Executable name or path (default: DefaultBinary)
	Logger *slog.Logger // Optional, defaults to slog.Default()
}

// Compile runs "truffle compile --all" against the bound network and returns
// the artifacts found in the build directory afterwards.
func (t *Tool) Compile(ctx context.Context, cfg *project.Config) (map[string]project.Artifact, error) {
	if err := t.run(ctx, cfg, "truffle compile", nil, "compile", "--all"); err != nil {
		return nil, err
	}
	artifacts, err := project.ReadArtifacts(cfg.BuildPath())
	if err != nil {
		return nil, fmt.Errorf("collect compiled artifacts: %w", err)
	}
	return artifacts, nil
}

// Deploy runs "truffle migrate --reset" against the bound network. Every
// stdout line is passed to onLine.
func (t *Tool) Deploy(ctx context.Context, cfg *project.Config, onLine func(string)) error {
	return t.run(ctx, cfg, "truffle migrate", onLine, "migrate", "--reset")
}

func (t *Tool) run(ctx context.Context, cfg *project.Config, name string, onLine func(string), args ...string) error {
	if cfg == nil {
		return fmt.Errorf("%s: project config must not be nil", name)
	}
	networkFile, err := cfg.WriteNetworkFile()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	binary := t.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	return process.Run(ctx, process.RunConfig{
		Name:   name,
		Binary: binary,
		Args:   append(args, "--network", cfg.Network),
		Dir:    cfg.Dir,
		Env:    []string{NetworkFileEnv + "=" + networkFile},
		OnLine: onLine,
		Logger: t.Logger,
	})
}
