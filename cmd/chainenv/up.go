package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/giantswarm/chainenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type upOptions struct {
	projectDir    string
	extract       []string
	copyPaths     []string
	count         int
	baseDir       string
	ganache       string
	truffle       string
	cacheDir      string
	serverLog     bool
	keepWorkspace bool
	readyTimeout  time.Duration
	closeTimeout  time.Duration
}

// sandboxInfo is printed for every ready sandbox, one JSON document per line.
type sandboxInfo struct {
	Network   string            `json:"network"`
	Port      int               `json:"port"`
	Endpoint  string            `json:"endpoint"`
	NetworkID uint64            `json:"network_id"`
	Publisher string            `json:"publisher"`
	Accounts  []string          `json:"accounts"`
	Addresses map[string]string `json:"addresses"`
	Workspace string            `json:"workspace"`
}

func newUpCmd() *cobra.Command {
	opts := upOptions{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start sandboxes and keep them running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runUp(ctx, cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.projectDir, "project", "p", ".", "truffle project directory")
	f.StringSliceVarP(&opts.extract, "extract", "e", nil, "contract names whose deployed addresses are reported")
	f.StringSliceVar(&opts.copyPaths, "copy", nil, "extra project-relative paths copied into each workspace")
	f.IntVarP(&opts.count, "count", "n", 1, "number of sandboxes to start")
	f.StringVar(&opts.baseDir, "base-dir", "", "directory holding the workspaces (default: system temp dir)")
	f.StringVar(&opts.ganache, "ganache", chainenv.DefaultGanacheBinary, "ganache binary")
	f.StringVar(&opts.truffle, "truffle", chainenv.DefaultTruffleBinary, "truffle binary")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "artifact cache directory (disabled when empty)")
	f.BoolVar(&opts.serverLog, "server-log", false, "forward ganache output to the log")
	f.BoolVar(&opts.keepWorkspace, "keep-workspace", false, "leave workspaces on disk on exit")
	f.DurationVar(&opts.readyTimeout, "ready-timeout", chainenv.DefaultAttributeTimeout, "maximum time to wait for a sandbox")
	f.DurationVar(&opts.closeTimeout, "close-timeout", time.Minute, "maximum time to wait for shutdown")

	return cmd
}

func (o upOptions) registryOptions() []chainenv.RegistryOption {
	opts := []chainenv.RegistryOption{
		chainenv.WithMaxInstances(o.count),
		chainenv.WithGanacheBinary(o.ganache),
		chainenv.WithTruffleBinary(o.truffle),
	}
	if o.baseDir != "" {
		opts = append(opts, chainenv.WithBaseDir(o.baseDir))
	}
	if o.cacheDir != "" {
		opts = append(opts, chainenv.WithArtifactCache(o.cacheDir))
	}
	return opts
}

func (o upOptions) sandboxOptions() ([]chainenv.SandboxOption, error) {
	projectDir, err := filepath.Abs(o.projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}
	return []chainenv.SandboxOption{
		chainenv.WithProjectDir(projectDir),
		chainenv.WithCopyPaths(o.copyPaths...),
		chainenv.WithExtract(o.extract...),
		chainenv.WithServerLog(o.serverLog),
		chainenv.WithKeepWorkspace(o.keepWorkspace),
		chainenv.WithAttributeTimeout(o.readyTimeout),
	}, nil
}

func runUp(ctx context.Context, out io.Writer, o upOptions) (retErr error) {
	if o.count <= 0 {
		return fmt.Errorf("count must be greater than 0, got %d", o.count)
	}
	sbOpts, err := o.sandboxOptions()
	if err != nil {
		return err
	}

	reg := chainenv.NewRegistry(o.registryOptions()...)
	defer func() {
		if err := reg.Close(); err != nil {
			retErr = errors.Join(retErr, err)
		}
	}()

	sandboxes := make([]chainenv.Sandbox, 0, o.count)
	defer func() {
		retErr = errors.Join(retErr, closeAll(sandboxes, o.closeTimeout))
	}()
	for range o.count {
		sb, err := reg.New(sbOpts...)
		if err != nil {
			return err
		}
		sandboxes = append(sandboxes, sb)
	}

	enc := json.NewEncoder(out)
	for _, sb := range sandboxes {
		info, err := describe(ctx, sb)
		if err != nil {
			return fmt.Errorf("sandbox %s: %w", sb.Network(), err)
		}
		if err := enc.Encode(info); err != nil {
			return fmt.Errorf("write sandbox info: %w", err)
		}
	}

	slog.Info("sandboxes ready, press Ctrl+C to stop", "count", len(sandboxes))
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// describe waits for sb to finish initializing and collects its attributes.
func describe(ctx context.Context, sb chainenv.Sandbox) (sandboxInfo, error) {
	addrs, err := sb.Addresses(ctx)
	if err != nil {
		return sandboxInfo{}, err
	}
	srv, err := sb.Server(ctx)
	if err != nil {
		return sandboxInfo{}, err
	}
	networkID, err := sb.NetworkID(ctx)
	if err != nil {
		return sandboxInfo{}, err
	}
	publisher, err := sb.Publisher(ctx)
	if err != nil {
		return sandboxInfo{}, err
	}
	accounts, err := sb.Accounts(ctx)
	if err != nil {
		return sandboxInfo{}, err
	}
	return sandboxInfo{
		Network:   sb.Network(),
		Port:      srv.Port,
		Endpoint:  srv.Endpoint,
		NetworkID: networkID,
		Publisher: publisher,
		Accounts:  accounts,
		Addresses: addrs,
		Workspace: sb.Workspace(),
	}, nil
}

// closeAll closes every sandbox in parallel. The networks are released when
// the last close completes.
func closeAll(sandboxes []chainenv.Sandbox, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	for _, sb := range sandboxes {
		g.Go(func() error {
			if err := sb.Close(ctx); err != nil {
				return fmt.Errorf("close sandbox %s: %w", sb.Network(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
