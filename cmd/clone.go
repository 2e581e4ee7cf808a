package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/blockdev"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sfdisk"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/clone"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

var cloneFlags struct {
	source  string
	target  string
	layout  string
	enlarge map[string]string
	uid     string
	yes     bool
}

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "clone a disk directly onto another disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cloneJobMain(cmd.Context())
	},
}

func init() {
	cloneCmd.Flags().StringVar(&cloneFlags.source, "source", "", "source whole-disk device")
	cloneCmd.Flags().StringVar(&cloneFlags.target, "target", "", "target whole-disk device")
	cloneCmd.Flags().StringVar(&cloneFlags.layout, "layout", string(model.LayoutCompact),
		"layout policy: verbatim, compact, or compact_with_enlargement")
	cloneCmd.Flags().StringToStringVar(&cloneFlags.enlarge, "enlarge", nil,
		"extra sectors per partition index, e.g. --enlarge 2=2048")
	cloneCmd.Flags().StringVar(&cloneFlags.uid, "uid", "", "resume the operation with this uid")
	cloneCmd.Flags().BoolVar(&cloneFlags.yes, "yes", false,
		"confirm rewriting the target's partition table")
	_ = cloneCmd.MarkFlagRequired("source")
	_ = cloneCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(cloneCmd)
}

func cloneJobMain(ctx context.Context) error {
	layout, err := model.ParseLayoutPolicy(cloneFlags.layout)
	if err != nil {
		return err
	}
	enlarge, err := parseEnlargeSectors(cloneFlags.enlarge)
	if err != nil {
		return err
	}
	request := &model.OperationRequest{
		Mode:                 model.ModeClone,
		SourceDevice:         cloneFlags.source,
		TargetDevice:         cloneFlags.target,
		Layout:               layout,
		EnlargeSectors:       enlarge,
		ConfirmedDestructive: cloneFlags.yes,
	}
	if err := request.Validate(); err != nil {
		return err
	}

	reg, cfg, err := newRegistry()
	if err != nil {
		return err
	}

	uid, ws, repo, err := openOperation(cloneFlags.uid)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	c := clone.NewClone(&input.Clone{
		Repo:        repo,
		Inspector:   blockdev.NewInspector(nil),
		Partitioner: sfdisk.NewPartitioner(nil),
		Registry:    reg,
		Backends:    newBackends(cfg),
		ActionUID:   uid,
		Request:     request,
		ProgressOut: os.Stderr,
	})
	return runJob(ctx, c, uid, ws)
}
