package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/verify"
)

var verifyFlags struct {
	archive string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "check every payload checksum in an archive bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyJobMain(cmd.Context())
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.archive, "archive", "", "archive bundle path")
	_ = verifyCmd.MarkFlagRequired("archive")
	rootCmd.AddCommand(verifyCmd)
}

func verifyJobMain(ctx context.Context) error {
	ws, err := scratch.New(flagScratchRoot, uuid.NewString())
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			slog.Warn("failed to release scratch area", "path", ws.RootPath(), "error", err)
		}
	}()

	v := verify.NewVerify(&input.Verify{
		Bundler:     bundle.New(),
		Workspace:   ws,
		ArchivePath: verifyFlags.archive,
		ProgressOut: os.Stderr,
	})
	return v.Perform(ctx)
}
