package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/cleanup"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
)

var cleanupFlags struct {
	dryRun bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "release scratch areas retained by failed operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cleanup.NewCleanup(&input.Cleanup{
			ScratchRoot: flagScratchRoot,
			DryRun:      cleanupFlags.dryRun,
			Out:         os.Stdout,
		})
		return c.Perform(cmd.Context())
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupFlags.dryRun, "dry-run", false,
		"list retained scratch areas without releasing them")
	rootCmd.AddCommand(cleanupCmd)
}
