package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/blockdev"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sfdisk"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/archive"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

var archiveFlags struct {
	source string
	output string
	codec  string
	uid    string
	yes    bool
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "image a disk into a single archive bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return archiveJobMain(cmd.Context())
	},
}

func init() {
	archiveCmd.Flags().StringVar(&archiveFlags.source, "source", "", "source whole-disk device")
	archiveCmd.Flags().StringVarP(&archiveFlags.output, "output", "o", "", "archive bundle path")
	archiveCmd.Flags().StringVar(&archiveFlags.codec, "codec", "zstd",
		fmt.Sprintf("payload compression codec %v", codec.Names()))
	archiveCmd.Flags().StringVar(&archiveFlags.uid, "uid", "", "resume the operation with this uid")
	archiveCmd.Flags().BoolVar(&archiveFlags.yes, "yes", false,
		"confirm archiving the disk backing the running system")
	_ = archiveCmd.MarkFlagRequired("source")
	_ = archiveCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(archiveCmd)
}

func archiveJobMain(ctx context.Context) error {
	request := &model.OperationRequest{
		Mode:                 model.ModeArchive,
		SourceDevice:         archiveFlags.source,
		ArchivePath:          archiveFlags.output,
		ConfirmedDestructive: archiveFlags.yes,
	}
	if err := request.Validate(); err != nil {
		return err
	}
	c, err := codec.ByName(archiveFlags.codec)
	if err != nil {
		return err
	}

	reg, cfg, err := newRegistry()
	if err != nil {
		return err
	}

	uid, ws, repo, err := openOperation(archiveFlags.uid)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	a := archive.NewArchive(&input.Archive{
		Repo:        repo,
		Inspector:   blockdev.NewInspector(nil),
		Partitioner: sfdisk.NewPartitioner(nil),
		Registry:    reg,
		Backends:    newBackends(cfg),
		Bundler:     bundle.New(),
		Workspace:   ws,
		Codec:       c,
		ActionUID:   uid,
		Request:     request,
		ProgressOut: os.Stderr,
	})
	return runJob(ctx, a, uid, ws)
}
