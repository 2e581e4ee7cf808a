// Package archive implements the archive job: snapshot the source disk's
// partition table, image every partition into a compressed payload with a
// checksum sidecar, and pack the scratch area into a single bundle file.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/progress"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/safety"
)

type Archive struct {
	repo        model.StateRepository
	inspector   model.DeviceInspector
	partitioner model.Partitioner
	registry    *registry.Registry
	backends    map[string]model.ImagingBackend
	bundler     model.Bundler
	workspace   model.Workspace
	codec       codec.Codec
	actionUID   string
	request     *model.OperationRequest
	progressOut io.Writer
}

func NewArchive(in *input.Archive) *Archive {
	return &Archive{
		repo:        in.Repo,
		inspector:   in.Inspector,
		partitioner: in.Partitioner,
		registry:    in.Registry,
		backends:    in.Backends,
		bundler:     in.Bundler,
		workspace:   in.Workspace,
		codec:       in.Codec,
		actionUID:   in.ActionUID,
		request:     in.Request,
		progressOut: in.ProgressOut,
	}
}

type privateData struct {
	NextEntry int  `json:"nextEntry"`
	Bundled   bool `json:"bundled"`
}

// Perform executes the archive process. If it can't get lock, it returns
// ErrCantLock.
func (a *Archive) Perform(ctx context.Context) error {
	err := a.repo.StartOrRestartAction(a.actionUID, model.ModeArchive)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			return job.ErrCantLock
		}
		return fmt.Errorf("failed to start or restart action: %w", err)
	}
	if err := a.doArchive(ctx); err != nil {
		return fmt.Errorf("failed to perform archive: %w", err)
	}
	if err := a.repo.CompleteAction(a.actionUID); err != nil {
		return fmt.Errorf("failed to complete action: %w", err)
	}
	return nil
}

func (a *Archive) doArchive(ctx context.Context) error {
	record, err := job.GetOperationRecord(a.repo)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		record, err = a.initRecord()
		if err != nil {
			return err
		}
	}

	pd, err := getPrivateData(a.repo, a.actionUID)
	if err != nil {
		return fmt.Errorf("failed to get private data: %w", err)
	}

	for i := pd.NextEntry; i < len(record.Table.Entries); i++ {
		entry := &record.Table.Entries[i]
		if record.Manifest.Entry(entry.Index) == nil {
			manifestEntry := a.archivePartition(ctx, entry, record.Table.SectorSize)
			if err := record.Manifest.Append(manifestEntry); err != nil {
				return err
			}
			entry.Filesystem = manifestEntry.Filesystem
			if err := a.persistRecord(record); err != nil {
				return err
			}
		}
		pd.NextEntry = i + 1
		if err := setPrivateData(a.repo, a.actionUID, pd); err != nil {
			return fmt.Errorf("failed to set private data: %w", err)
		}
		// A cancellation surfaces as a failed entry for the in-flight
		// partition; that entry is already persisted, so stop here.
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if pd.Bundled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(record.Manifest.Successful()) == 0 {
		return fmt.Errorf("every partition failed to image: %w", model.ErrCorruptArchive)
	}
	if err := a.bundler.Pack(a.workspace, record.Manifest, a.request.ArchivePath); err != nil {
		return err
	}
	pd.Bundled = true
	if err := setPrivateData(a.repo, a.actionUID, pd); err != nil {
		return fmt.Errorf("failed to set private data: %w", err)
	}

	slog.Info("archive complete",
		"archive", a.request.ArchivePath,
		"partitions", record.Manifest.SuccessfulIndices(),
		"failed", record.Manifest.FailedIndices(),
		"elapsed", time.Since(record.StartedAt))
	return nil
}

// initRecord runs the checks that happen exactly once per operation and
// snapshots the source table. Everything after this point works from the
// snapshot, never from the live device.
func (a *Archive) initRecord() (*job.OperationRecord, error) {
	live, err := safety.IsLiveSource(a.inspector, a.request.SourceDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to check source liveness: %w", err)
	}
	if live && !a.request.ConfirmedDestructive {
		return nil, fmt.Errorf("archiving %s: %w", a.request.SourceDevice, model.ErrLiveSourceUnconfirmed)
	}

	table, err := a.partitioner.DumpTable(a.request.SourceDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to dump source table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	estimate, err := safety.EstimatePayload(a.inspector, a.request.SourceDevice, table)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate payload: %w", err)
	}
	slog.Info("starting archive",
		"source", a.request.SourceDevice,
		"partitions", len(table.Entries),
		"estimatedPayload", humanize.IBytes(estimate))

	record := &job.OperationRecord{
		Mode:         model.ModeArchive,
		SourceDevice: a.request.SourceDevice,
		ArchivePath:  a.request.ArchivePath,
		Table:        table,
		Manifest:     &model.Manifest{},
		StartedAt:    time.Now().UTC(),
	}
	if err := a.persistRecord(record); err != nil {
		return nil, err
	}
	return record, nil
}

// archivePartition images one partition into the scratch area. Failures do
// not abort the operation; they produce a failed manifest entry and the
// loop moves on to the next partition.
func (a *Archive) archivePartition(ctx context.Context, entry *model.PartitionEntry, sectorSize uint64) model.ManifestEntry {
	manifestEntry := model.ManifestEntry{
		PartitionIndex: entry.Index,
		Filesystem:     model.FilesystemUnknown,
		Codec:          a.codec.Name(),
		Status:         model.StatusFailed,
	}

	device, err := a.inspector.PartitionDevice(a.request.SourceDevice, entry.Index)
	if err != nil {
		slog.Error("failed to resolve partition device",
			"disk", a.request.SourceDevice, "partition", entry.Index, "error", err)
		return manifestEntry
	}

	kind, err := a.inspector.Filesystem(device)
	if err != nil {
		slog.Error("failed to probe filesystem", "device", device, "error", err)
		return manifestEntry
	}
	manifestEntry.Filesystem = kind

	mounted, err := a.inspector.IsMounted(device)
	if err != nil {
		slog.Error("failed to check mount state", "device", device, "error", err)
		return manifestEntry
	}

	backend, err := job.ResolveBackend(a.registry, a.backends, kind, mounted)
	if err != nil {
		slog.Error("failed to resolve backend", "device", device, "error", err)
		return manifestEntry
	}
	manifestEntry.Backend = backend.Name()
	manifestEntry.BackendMode = backend.Mode()

	payloadPath := a.workspace.PayloadPath(entry.Index, a.codec.Ext())
	size, err := a.imagePartition(ctx, backend, device, entry.SizeSectors*sectorSize, payloadPath)
	if err != nil {
		slog.Error("failed to image partition",
			"device", device, "backend", backend.Name(), "error", err)
		_ = os.Remove(payloadPath)
		_ = os.Remove(a.workspace.ChecksumPath(payloadPath))
		return manifestEntry
	}

	manifestEntry.PayloadFilename = filepath.Base(payloadPath)
	manifestEntry.ByteSize = size
	manifestEntry.Status = model.StatusOK
	return manifestEntry
}

// imagePartition runs the streaming pipeline for one partition: backend
// image -> progress -> compression -> checksummed payload file.
func (a *Archive) imagePartition(
	ctx context.Context,
	backend model.ImagingBackend,
	device string,
	totalBytes uint64,
	payloadPath string,
) (uint64, error) {
	payloadFile, err := os.OpenFile(payloadPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create payload file: %w", err)
	}
	defer func() { _ = payloadFile.Close() }()

	sidecarFile, err := os.OpenFile(
		a.workspace.ChecksumPath(payloadPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create checksum sidecar: %w", err)
	}
	defer func() { _ = sidecarFile.Close() }()

	counting := progress.NewCountingWriter(payloadFile)
	checksummed, err := csumio.NewWriter(counting, sidecarFile, csumio.DefaultChunkSize)
	if err != nil {
		return 0, err
	}
	compressing, err := a.codec.Compress(checksummed)
	if err != nil {
		return 0, fmt.Errorf("failed to open compressor: %w", err)
	}

	progressWriter := progress.NewWriter(compressing, totalBytes, device, a.progressOut)

	if err := backend.Save(ctx, device, progressWriter); err != nil {
		_ = compressing.Close()
		return 0, err
	}
	progressWriter.Finish()

	if err := compressing.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush compressor: %w", err)
	}
	if err := checksummed.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush checksums: %w", err)
	}
	if err := sidecarFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close checksum sidecar: %w", err)
	}
	if err := payloadFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close payload file: %w", err)
	}
	return counting.Count(), nil
}

// persistRecord writes the table snapshot and manifest files used by the
// bundler and stores the durable record.
func (a *Archive) persistRecord(record *job.OperationRecord) error {
	tableData, err := json.MarshalIndent(record.Table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal table snapshot: %w", err)
	}
	if err := os.WriteFile(a.workspace.TablePath(), tableData, 0o600); err != nil {
		return fmt.Errorf("failed to write table snapshot: %w", err)
	}

	manifestData, err := json.MarshalIndent(record.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(a.workspace.ManifestPath(), manifestData, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return job.SetOperationRecord(a.repo, record)
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
