package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/blockdev"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sfdisk"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/restore"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

var restoreFlags struct {
	archive    string
	target     string
	layout     string
	partitions []int
	enlarge    map[string]string
	uid        string
	yes        bool
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "restore an archive bundle onto a target disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return restoreJobMain(cmd.Context())
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFlags.archive, "archive", "", "archive bundle path")
	restoreCmd.Flags().StringVar(&restoreFlags.target, "target", "", "target whole-disk device")
	restoreCmd.Flags().StringVar(&restoreFlags.layout, "layout", string(model.LayoutCompact),
		"layout policy: verbatim, compact, or compact_with_enlargement")
	restoreCmd.Flags().IntSliceVar(&restoreFlags.partitions, "partitions", nil,
		"restore only these partition indices into the target's existing table")
	restoreCmd.Flags().StringToStringVar(&restoreFlags.enlarge, "enlarge", nil,
		"extra sectors per partition index, e.g. --enlarge 2=2048")
	restoreCmd.Flags().StringVar(&restoreFlags.uid, "uid", "", "resume the operation with this uid")
	restoreCmd.Flags().BoolVar(&restoreFlags.yes, "yes", false,
		"confirm rewriting the target's partition table")
	_ = restoreCmd.MarkFlagRequired("archive")
	_ = restoreCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(restoreCmd)
}

// parseEnlargeSectors converts the --enlarge flag map into partition
// index -> sector count.
func parseEnlargeSectors(raw map[string]string) (map[int]uint64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int]uint64, len(raw))
	for k, v := range raw {
		index, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid partition index %q: %w", k, err)
		}
		sectors, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sector count %q: %w", v, err)
		}
		out[index] = sectors
	}
	return out, nil
}

func restoreJobMain(ctx context.Context) error {
	layout, err := model.ParseLayoutPolicy(restoreFlags.layout)
	if err != nil {
		return err
	}
	enlarge, err := parseEnlargeSectors(restoreFlags.enlarge)
	if err != nil {
		return err
	}
	request := &model.OperationRequest{
		Mode:                 model.ModeRestore,
		ArchivePath:          restoreFlags.archive,
		TargetDevice:         restoreFlags.target,
		Selection:            restoreFlags.partitions,
		Layout:               layout,
		EnlargeSectors:       enlarge,
		ConfirmedDestructive: restoreFlags.yes,
	}
	if err := request.Validate(); err != nil {
		return err
	}

	_, cfg, err := newRegistry()
	if err != nil {
		return err
	}

	uid, ws, repo, err := openOperation(restoreFlags.uid)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	r := restore.NewRestore(&input.Restore{
		Repo:        repo,
		Inspector:   blockdev.NewInspector(nil),
		Partitioner: sfdisk.NewPartitioner(nil),
		Backends:    newBackends(cfg),
		Bundler:     bundle.New(),
		Workspace:   ws,
		ActionUID:   uid,
		Request:     request,
		ProgressOut: os.Stderr,
	})
	return runJob(ctx, r, uid, ws)
}
