// Command chainenv starts contract sandboxes from a truffle project and keeps
// them running until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/giantswarm/chainenv"
	"github.com/spf13/cobra"
)

// Set by the linker.
var version = "dev"

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:           "chainenv",
		Short:         "Run disposable ganache networks with a truffle project deployed on them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var debug bool
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "set debug logging level")
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		setupLogging(debug)
	}

	rootCmd.AddCommand(
		newUpCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return exitCodeError
	}
	return exitCodeSuccess
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	chainenv.SetLogger(slog.Default().With("component", "chainenv"))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
