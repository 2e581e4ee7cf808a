// Package restore implements the restore job: unpack a bundle, rebuild
// the partition table on the target under the requested layout policy,
// stream every payload back onto its partition, and reapply the archived
// identity metadata.
package restore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/parttable"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/progress"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/safety"
)

// Phases of a restore, persisted in the private data. A resumed run
// continues from the recorded phase; in particular the table is applied at
// most once no matter how many times the job restarts.
const (
	phaseExtract    = ""
	phaseTablePlan  = "TABLE_PLAN"
	phaseTableApply = "TABLE_APPLY"
	phasePartitions = "PER_PARTITION_RESTORE"
	phaseIdentity   = "IDENTITY_FIXUP"
	phasePostCheck  = "POST_CHECK"
	phaseDone       = "DONE"
)

type Restore struct {
	repo        model.StateRepository
	inspector   model.DeviceInspector
	partitioner model.Partitioner
	backends    map[string]model.ImagingBackend
	bundler     model.Bundler
	workspace   model.Workspace
	actionUID   string
	request     *model.OperationRequest
	progressOut io.Writer
}

func NewRestore(in *input.Restore) *Restore {
	return &Restore{
		repo:        in.Repo,
		inspector:   in.Inspector,
		partitioner: in.Partitioner,
		backends:    in.Backends,
		bundler:     in.Bundler,
		workspace:   in.Workspace,
		actionUID:   in.ActionUID,
		request:     in.Request,
		progressOut: in.ProgressOut,
	}
}

type privateData struct {
	Phase     string `json:"phase"`
	NextEntry int    `json:"nextEntry"`
	// Failed holds the partition indices that failed in the last walk of
	// the manifest; a rerun reattempts exactly these.
	Failed []int `json:"failed,omitempty"`
}

// Perform executes the restore process. If it can't get lock, it returns
// ErrCantLock.
func (r *Restore) Perform(ctx context.Context) error {
	err := r.repo.StartOrRestartAction(r.actionUID, model.ModeRestore)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			return job.ErrCantLock
		}
		return fmt.Errorf("failed to start or restart action: %w", err)
	}
	if err := r.doRestore(ctx); err != nil {
		return fmt.Errorf("failed to perform restore: %w", err)
	}
	if err := r.repo.CompleteAction(r.actionUID); err != nil {
		return fmt.Errorf("failed to complete action: %w", err)
	}
	return nil
}

// partial reports whether this is a partial restore. A partial restore
// trusts the target's existing table and never writes table, identity, or
// backup header.
func (r *Restore) partial() bool {
	return len(r.request.Selection) > 0
}

func (r *Restore) doRestore(ctx context.Context) error {
	pd, err := getPrivateData(r.repo, r.actionUID)
	if err != nil {
		return fmt.Errorf("failed to get private data: %w", err)
	}

	var record *job.OperationRecord
	if pd.Phase == phaseExtract {
		record, err = r.extract()
		if err != nil {
			return err
		}
		pd.Phase = phaseTablePlan
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	} else {
		record, err = job.GetOperationRecord(r.repo)
		if err != nil {
			return err
		}
	}

	if pd.Phase == phaseTablePlan {
		if err := r.planTable(record); err != nil {
			return err
		}
		if r.partial() {
			// The target table is trusted as-is; skip straight past the
			// apply phase.
			pd.Phase = phasePartitions
		} else {
			pd.Phase = phaseTableApply
		}
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phaseTableApply {
		if err := r.partitioner.ApplyTable(r.request.TargetDevice, record.Plan); err != nil {
			return err
		}
		pd.Phase = phasePartitions
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phasePartitions {
		if err := r.restorePartitions(ctx, record, pd); err != nil {
			return err
		}
		pd.Phase = phaseIdentity
		pd.NextEntry = 0
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phaseIdentity {
		if !r.partial() {
			if err := r.fixupIdentity(record); err != nil {
				return err
			}
		}
		pd.Phase = phasePostCheck
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}

	if pd.Phase == phasePostCheck {
		if !r.partial() {
			if err := r.partitioner.RepairBackupHeader(r.request.TargetDevice); err != nil {
				return err
			}
		}
		pd.Phase = phaseDone
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}

	var restored []int
	for _, entry := range record.Manifest.Successful() {
		if r.request.Selected(entry.PartitionIndex) {
			restored = append(restored, entry.PartitionIndex)
		}
	}
	slog.Info("restore complete", "target", r.request.TargetDevice,
		"partial", r.partial(), "restored", restored,
		"elapsed", time.Since(record.StartedAt))
	return nil
}

// extract unpacks the bundle into the scratch area and runs the one-time
// target safety checks.
func (r *Restore) extract() (*job.OperationRecord, error) {
	if !r.partial() && !r.request.ConfirmedDestructive {
		return nil, fmt.Errorf("restoring to %s rewrites its partition table: %w",
			r.request.TargetDevice, model.ErrLiveSourceUnconfirmed)
	}

	live, err := safety.IsLiveSource(r.inspector, r.request.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to check target liveness: %w", err)
	}
	if live {
		return nil, fmt.Errorf("target %s hosts the running system: %w",
			r.request.TargetDevice, model.ErrLiveSourceUnconfirmed)
	}
	if !r.partial() {
		mounted, err := r.inspector.IsMounted(r.request.TargetDevice)
		if err != nil {
			return nil, fmt.Errorf("failed to check target mount state: %w", err)
		}
		if mounted {
			return nil, fmt.Errorf("target %s has mounted filesystems", r.request.TargetDevice)
		}
	}

	table, manifest, err := r.bundler.Unpack(r.request.ArchivePath, r.workspace)
	if err != nil {
		return nil, err
	}

	// The manifest knows each partition's filesystem; the table snapshot
	// alone does not. Merge so layout planning can check resizability.
	for i := range table.Entries {
		if entry := manifest.Entry(table.Entries[i].Index); entry != nil {
			table.Entries[i].Filesystem = entry.Filesystem
		}
	}

	record := &job.OperationRecord{
		Mode:         model.ModeRestore,
		TargetDevice: r.request.TargetDevice,
		ArchivePath:  r.request.ArchivePath,
		Table:        table,
		Manifest:     manifest,
		StartedAt:    time.Now().UTC(),
	}
	if err := job.SetOperationRecord(r.repo, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Restore) planTable(record *job.OperationRecord) error {
	if r.partial() {
		return nil
	}

	sectorSize, err := r.inspector.SectorSize(r.request.TargetDevice)
	if err != nil {
		return fmt.Errorf("failed to read target sector size: %w", err)
	}
	sizeBytes, err := r.inspector.SizeBytes(r.request.TargetDevice)
	if err != nil {
		return fmt.Errorf("failed to read target size: %w", err)
	}

	var payloadBytes uint64
	for _, entry := range record.Manifest.Successful() {
		payloadBytes += entry.ByteSize
	}
	if _, err := safety.ValidateCapacity(payloadBytes, sizeBytes, model.ModeRestore); err != nil {
		slog.Warn("target may be too small for the archived payloads",
			"target", r.request.TargetDevice, "payloadBytes", payloadBytes,
			"targetBytes", sizeBytes, "error", err)
	}

	plan, err := parttable.PlanTarget(
		record.Table, r.request.Layout, r.request.EnlargeSectors,
		sectorSize, sizeBytes/sectorSize)
	if err != nil {
		return err
	}
	record.Plan = plan
	return job.SetOperationRecord(r.repo, record)
}

// restorePartitions walks the manifest and restores every selected
// partition. A failed partition does not stop the walk; the remaining
// partitions are still restored and the failures are reported together at
// the end. A rerun after such a failure reattempts only the failed
// partitions.
func (r *Restore) restorePartitions(ctx context.Context, record *job.OperationRecord, pd *privateData) error {
	successful := record.Manifest.Successful()

	retry := make(map[int]bool)
	if pd.NextEntry >= len(successful) && len(pd.Failed) > 0 {
		for _, index := range pd.Failed {
			retry[index] = true
		}
		pd.NextEntry = 0
		pd.Failed = nil
	}

	var errs []error
	for i := pd.NextEntry; i < len(successful); i++ {
		entry := successful[i]
		if r.request.Selected(entry.PartitionIndex) &&
			(len(retry) == 0 || retry[entry.PartitionIndex]) {
			if err := r.restorePartition(ctx, &entry); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.Warn("failed to restore partition, continuing",
					"target", r.request.TargetDevice,
					"partition", entry.PartitionIndex, "error", err)
				pd.Failed = append(pd.Failed, entry.PartitionIndex)
				errs = append(errs, err)
			}
		}
		pd.NextEntry = i + 1
		if err := setPrivateData(r.repo, r.actionUID, pd); err != nil {
			return err
		}
	}
	if len(pd.Failed) > 0 {
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("failed to restore partitions %v: %w", pd.Failed, err)
		}
		return fmt.Errorf("failed to restore partitions %v", pd.Failed)
	}
	return nil
}

func (r *Restore) restorePartition(ctx context.Context, entry *model.ManifestEntry) error {
	device, err := r.inspector.PartitionDevice(r.request.TargetDevice, entry.PartitionIndex)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) && r.partial() {
			// The trusted target table simply has no such partition.
			slog.Warn("skipping partition absent from target",
				"target", r.request.TargetDevice, "partition", entry.PartitionIndex)
			return nil
		}
		return fmt.Errorf("failed to resolve target partition %d: %w", entry.PartitionIndex, err)
	}

	backend, ok := r.backends[entry.Backend]
	if !ok {
		return fmt.Errorf("partition %d was archived with %q: %w",
			entry.PartitionIndex, entry.Backend, model.ErrBackendMismatch)
	}
	if backend.Mode() != entry.BackendMode {
		return fmt.Errorf("partition %d was archived in %q mode, backend %q is %q: %w",
			entry.PartitionIndex, entry.BackendMode, entry.Backend, backend.Mode(),
			model.ErrBackendMismatch)
	}

	c, err := codec.ByName(entry.Codec)
	if err != nil {
		return fmt.Errorf("partition %d: %w", entry.PartitionIndex, err)
	}

	payloadPath := r.workspace.PayloadPath(entry.PartitionIndex, c.Ext())
	payloadFile, err := os.Open(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer func() { _ = payloadFile.Close() }()

	sidecarFile, err := os.Open(r.workspace.ChecksumPath(payloadPath))
	if err != nil {
		return fmt.Errorf("failed to open checksum sidecar: %w", err)
	}
	defer func() { _ = sidecarFile.Close() }()

	checksummed, err := csumio.NewReader(payloadFile, sidecarFile, csumio.DefaultChunkSize)
	if err != nil {
		return err
	}
	progressReader := progress.NewReader(checksummed, entry.ByteSize, device, r.progressOut)
	decompressing, err := c.Decompress(progressReader)
	if err != nil {
		return fmt.Errorf("failed to open decompressor: %w", err)
	}
	defer func() { _ = decompressing.Close() }()

	if err := backend.Restore(ctx, decompressing, device); err != nil {
		return fmt.Errorf("failed to restore partition %d: %w", entry.PartitionIndex, err)
	}
	return nil
}

// fixupIdentity reapplies the archived disk GUID and per-partition type
// and identity GUIDs after the table write.
func (r *Restore) fixupIdentity(record *job.OperationRecord) error {
	if record.Table.DiskGUID != "" {
		if err := r.partitioner.SetDiskGUID(r.request.TargetDevice, record.Table.DiskGUID); err != nil {
			return err
		}
	}
	for i := range record.Table.Entries {
		entry := &record.Table.Entries[i]
		if record.Manifest.Entry(entry.Index) == nil {
			continue
		}
		if err := r.partitioner.SetPartitionIdentity(r.request.TargetDevice, entry); err != nil {
			return err
		}
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
