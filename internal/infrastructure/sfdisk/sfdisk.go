// Package sfdisk implements the partitioner over the util-linux sfdisk
// and gptfdisk sgdisk tools. sfdisk handles whole-table dump and apply;
// sgdisk handles the identity fixups that a plain table write does not
// reliably carry.
package sfdisk

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/parttable"
)

// Runner executes a partitioning tool and returns its combined output.
// The output is kept verbatim because table-write failures surface the
// tool's diagnostic to the operator.
type Runner interface {
	Run(ctx context.Context, stdin string, command ...string) ([]byte, error)
}

type execRunner struct{}

// NewRunner returns the exec-based Runner.
func NewRunner() Runner {
	return &execRunner{}
}

func (e *execRunner) Run(ctx context.Context, stdin string, command ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w", command[0], err)
	}
	return out, nil
}

// Partitioner is the sfdisk/sgdisk implementation of model.Partitioner.
type Partitioner struct {
	runner Runner
}

var _ model.Partitioner = &Partitioner{}

func NewPartitioner(runner Runner) *Partitioner {
	if runner == nil {
		runner = NewRunner()
	}
	return &Partitioner{runner: runner}
}

func (p *Partitioner) DumpTable(device string) (*model.PartitionTable, error) {
	out, err := p.runner.Run(context.Background(), "", "sfdisk", "--dump", device)
	if err != nil {
		return nil, fmt.Errorf("failed to dump table of %s: %w: %s", device, err, string(out))
	}
	table, err := parttable.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse table of %s: %w", device, err)
	}
	return table, nil
}

func (p *Partitioner) ApplyTable(device string, table *model.PartitionTable) error {
	script := parttable.Serialize(table)
	out, err := p.runner.Run(context.Background(), string(script),
		"sfdisk", "--wipe", "always", device)
	if err != nil {
		return &model.TableWriteError{
			Device:     device,
			Diagnostic: strings.TrimSpace(string(out)),
			Err:        err,
		}
	}
	return nil
}

func (p *Partitioner) SetDiskGUID(device, guid string) error {
	out, err := p.runner.Run(context.Background(), "",
		"sgdisk", "--disk-guid="+guid, device)
	if err != nil {
		return fmt.Errorf("failed to set disk GUID on %s: %w: %s", device, err, string(out))
	}
	return nil
}

func (p *Partitioner) SetPartitionIdentity(device string, entry *model.PartitionEntry) error {
	args := []string{"sgdisk"}
	if entry.TypeGUID != "" {
		args = append(args, fmt.Sprintf("--typecode=%d:%s", entry.Index, entry.TypeGUID))
	}
	if entry.PartitionUUID != "" {
		args = append(args, fmt.Sprintf("--partition-guid=%d:%s", entry.Index, entry.PartitionUUID))
	}
	if len(args) == 1 {
		return nil
	}
	args = append(args, device)
	out, err := p.runner.Run(context.Background(), "", args...)
	if err != nil {
		return fmt.Errorf("failed to set identity of partition %d on %s: %w: %s",
			entry.Index, device, err, string(out))
	}
	return nil
}

func (p *Partitioner) RepairBackupHeader(device string) error {
	// sgdisk -e relocates the secondary header and entry array to the
	// last sectors of the disk.
	out, err := p.runner.Run(context.Background(), "", "sgdisk", "-e", device)
	if err != nil {
		return fmt.Errorf("failed to repair backup header on %s: %w: %s", device, err, string(out))
	}
	return nil
}
