package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagScratchRoot   string
	flagBackendConfig string
	flagVerbose       bool
)

var rootCmd = &cobra.Command{
	Use:           "adc",
	Short:         "disk imaging with GPT identity preservation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagScratchRoot, "scratch-root", "/var/tmp/adc",
		"directory holding per-operation scratch areas")
	rootCmd.PersistentFlags().StringVar(&flagBackendConfig, "backend-config", "",
		"YAML file overriding the imaging backend table")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")
}

// Execute runs the root command under a context canceled by SIGINT or
// SIGTERM, so an interrupted job stops at the next partition boundary and
// retains its scratch area for a later rerun.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
