// Package clone implements the disk-to-disk clone job: plan the target
// table from the live source, apply it, and stream every partition
// directly from source to target with no intermediate archive.
package clone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/parttable"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/progress"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/safety"
)

const (
	phasePlan       = ""
	phaseTableApply = "TABLE_APPLY"
	phasePartitions = "PER_PARTITION_COPY"
	phaseIdentity   = "IDENTITY_FIXUP"
	phasePostCheck  = "POST_CHECK"
	phaseDone       = "DONE"
)

type Clone struct {
	repo        model.StateRepository
	inspector   model.DeviceInspector
	partitioner model.Partitioner
	registry    *registry.Registry
	backends    map[string]model.ImagingBackend
	actionUID   string
	request     *model.OperationRequest
	progressOut io.Writer
}

func NewClone(in *input.Clone) *Clone {
	return &Clone{
		repo:        in.Repo,
		inspector:   in.Inspector,
		partitioner: in.Partitioner,
		registry:    in.Registry,
		backends:    in.Backends,
		actionUID:   in.ActionUID,
		request:     in.Request,
		progressOut: in.ProgressOut,
	}
}

type privateData struct {
	Phase     string `json:"phase"`
	NextEntry int    `json:"nextEntry"`
}

// Perform executes the clone process. If it can't get lock, it returns
// ErrCantLock.
func (c *Clone) Perform(ctx context.Context) error {
	err := c.repo.StartOrRestartAction(c.actionUID, model.ModeClone)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			return job.ErrCantLock
		}
		return fmt.Errorf("failed to start or restart action: %w", err)
	}
	if err := c.doClone(ctx); err != nil {
		return fmt.Errorf("failed to perform clone: %w", err)
	}
	if err := c.repo.CompleteAction(c.actionUID); err != nil {
		return fmt.Errorf("failed to complete action: %w", err)
	}
	return nil
}

func (c *Clone) doClone(ctx context.Context) error {
	pd, err := getPrivateData(c.repo, c.actionUID)
	if err != nil {
		return fmt.Errorf("failed to get private data: %w", err)
	}

	var record *job.OperationRecord
	if pd.Phase == phasePlan {
		record, err = c.plan()
		if err != nil {
			return err
		}
		pd.Phase = phaseTableApply
		if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
			return err
		}
	} else {
		record, err = job.GetOperationRecord(c.repo)
		if err != nil {
			return err
		}
	}

	if pd.Phase == phaseTableApply {
		if err := c.partitioner.ApplyTable(c.request.TargetDevice, record.Plan); err != nil {
			return err
		}
		pd.Phase = phasePartitions
		if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phasePartitions {
		for i := pd.NextEntry; i < len(record.Table.Entries); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.clonePartition(ctx, &record.Table.Entries[i]); err != nil {
				return err
			}
			pd.NextEntry = i + 1
			if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
				return err
			}
		}
		pd.Phase = phaseIdentity
		if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phaseIdentity {
		if record.Table.DiskGUID != "" {
			if err := c.partitioner.SetDiskGUID(c.request.TargetDevice, record.Table.DiskGUID); err != nil {
				return err
			}
		}
		for i := range record.Table.Entries {
			if err := c.partitioner.SetPartitionIdentity(
				c.request.TargetDevice, &record.Table.Entries[i]); err != nil {
				return err
			}
		}
		pd.Phase = phasePostCheck
		if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phasePostCheck {
		if err := c.partitioner.RepairBackupHeader(c.request.TargetDevice); err != nil {
			return err
		}
		pd.Phase = phaseDone
		if err := setPrivateData(c.repo, c.actionUID, pd); err != nil {
			return err
		}
	}

	var copied []int
	for _, entry := range record.Table.Entries {
		copied = append(copied, entry.Index)
	}
	slog.Info("clone complete",
		"source", c.request.SourceDevice, "target", c.request.TargetDevice,
		"partitions", copied, "elapsed", time.Since(record.StartedAt))
	return nil
}

// plan runs the one-time safety gates and computes the target table. The
// capacity check is a hard gate here: a clone has no manifest to record a
// partial outcome in, so an undersized target aborts before any write.
func (c *Clone) plan() (*job.OperationRecord, error) {
	if !c.request.ConfirmedDestructive {
		return nil, fmt.Errorf("cloning to %s rewrites its partition table: %w",
			c.request.TargetDevice, model.ErrLiveSourceUnconfirmed)
	}

	live, err := safety.IsLiveSource(c.inspector, c.request.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to check target liveness: %w", err)
	}
	if live {
		return nil, fmt.Errorf("target %s hosts the running system: %w",
			c.request.TargetDevice, model.ErrLiveSourceUnconfirmed)
	}
	mounted, err := c.inspector.IsMounted(c.request.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to check target mount state: %w", err)
	}
	if mounted {
		return nil, fmt.Errorf("target %s has mounted filesystems", c.request.TargetDevice)
	}

	table, err := c.partitioner.DumpTable(c.request.SourceDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to dump source table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	for i := range table.Entries {
		entry := &table.Entries[i]
		device, err := c.inspector.PartitionDevice(c.request.SourceDevice, entry.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source partition %d: %w", entry.Index, err)
		}
		kind, err := c.inspector.Filesystem(device)
		if err != nil {
			return nil, fmt.Errorf("failed to probe filesystem of %s: %w", device, err)
		}
		entry.Filesystem = kind
	}

	estimate, err := safety.EstimatePayload(c.inspector, c.request.SourceDevice, table)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate payload: %w", err)
	}
	targetBytes, err := c.inspector.SizeBytes(c.request.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to read target size: %w", err)
	}
	if _, err := safety.ValidateCapacity(estimate, targetBytes, model.ModeClone); err != nil {
		return nil, err
	}
	slog.Info("starting clone",
		"source", c.request.SourceDevice,
		"target", c.request.TargetDevice,
		"estimatedPayload", humanize.IBytes(estimate))

	sectorSize, err := c.inspector.SectorSize(c.request.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to read target sector size: %w", err)
	}
	plan, err := parttable.PlanTarget(
		table, c.request.Layout, c.request.EnlargeSectors,
		sectorSize, targetBytes/sectorSize)
	if err != nil {
		return nil, err
	}

	record := &job.OperationRecord{
		Mode:         model.ModeClone,
		SourceDevice: c.request.SourceDevice,
		TargetDevice: c.request.TargetDevice,
		Table:        table,
		Plan:         plan,
		StartedAt:    time.Now().UTC(),
	}
	if err := job.SetOperationRecord(c.repo, record); err != nil {
		return nil, err
	}
	return record, nil
}

// clonePartition streams one partition through a pipe: the save side
// images the source while the restore side writes the target. Unlike
// archive, any partition failure aborts the clone; there is no manifest
// to record a partial outcome in.
func (c *Clone) clonePartition(ctx context.Context, entry *model.PartitionEntry) error {
	sourceDev, err := c.inspector.PartitionDevice(c.request.SourceDevice, entry.Index)
	if err != nil {
		return fmt.Errorf("failed to resolve source partition %d: %w", entry.Index, err)
	}
	targetDev, err := c.inspector.PartitionDevice(c.request.TargetDevice, entry.Index)
	if err != nil {
		return fmt.Errorf("failed to resolve target partition %d: %w", entry.Index, err)
	}

	mounted, err := c.inspector.IsMounted(sourceDev)
	if err != nil {
		return fmt.Errorf("failed to check mount state of %s: %w", sourceDev, err)
	}
	backend, err := job.ResolveBackend(c.registry, c.backends, entry.Filesystem, mounted)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	saveErr := make(chan error, 1)
	go func() {
		err := backend.Save(ctx, sourceDev, pw)
		_ = pw.CloseWithError(err)
		saveErr <- err
	}()

	progressReader := progress.NewReader(pr, 0, targetDev, c.progressOut)
	restoreErr := backend.Restore(ctx, progressReader, targetDev)
	_ = pr.CloseWithError(restoreErr)

	if err := <-saveErr; err != nil {
		return fmt.Errorf("failed to image %s: %w", sourceDev, err)
	}
	if restoreErr != nil {
		return fmt.Errorf("failed to write %s: %w", targetDev, restoreErr)
	}
	return nil
}

func getPrivateData(repo model.StateRepository, uid string) (*privateData, error) {
	data, err := repo.GetActionPrivateData(uid)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &privateData{}, nil
	}
	var pd privateData
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal private data: %w", err)
	}
	return &pd, nil
}

func setPrivateData(repo model.StateRepository, uid string, pd *privateData) error {
	data, err := json.Marshal(pd)
	if err != nil {
		return fmt.Errorf("failed to marshal private data: %w", err)
	}
	return repo.UpdateActionPrivateData(uid, data)
}
