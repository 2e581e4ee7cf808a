// Package verify implements the archive verification job: unpack a
// bundle into a scratch area and read every payload back through its
// checksum sidecar without touching any device.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/progress"
)

type Verify struct {
	bundler     model.Bundler
	workspace   model.Workspace
	archivePath string
	progressOut io.Writer
}

func NewVerify(in *input.Verify) *Verify {
	return &Verify{
		bundler:     in.Bundler,
		workspace:   in.Workspace,
		archivePath: in.ArchivePath,
		progressOut: in.ProgressOut,
	}
}

// Perform verifies every successful payload in the bundle. A checksum
// mismatch anywhere returns an error wrapping csumio.ErrChecksumMismatch
// after all payloads have been checked, so the log names every corrupt
// partition, not just the first.
func (v *Verify) Perform(ctx context.Context) error {
	table, manifest, err := v.bundler.Unpack(v.archivePath, v.workspace)
	if err != nil {
		return err
	}
	slog.Info("verifying archive",
		"archive", v.archivePath,
		"diskGUID", table.DiskGUID,
		"partitions", len(manifest.Successful()))

	var corrupt []int
	for _, entry := range manifest.Successful() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.verifyPayload(&entry); err != nil {
			if errors.Is(err, csumio.ErrChecksumMismatch) {
				slog.Error("payload corrupt", "partition", entry.PartitionIndex)
				corrupt = append(corrupt, entry.PartitionIndex)
				continue
			}
			return err
		}
		slog.Info("payload ok",
			"partition", entry.PartitionIndex,
			"backend", entry.Backend,
			"size", humanize.IBytes(entry.ByteSize))
	}

	if len(corrupt) > 0 {
		return fmt.Errorf("partitions %v failed verification: %w", corrupt, csumio.ErrChecksumMismatch)
	}
	return nil
}

func (v *Verify) verifyPayload(entry *model.ManifestEntry) error {
	c, err := codec.ByName(entry.Codec)
	if err != nil {
		return fmt.Errorf("partition %d: %w", entry.PartitionIndex, err)
	}

	payloadPath := v.workspace.PayloadPath(entry.PartitionIndex, c.Ext())
	payloadFile, err := os.Open(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer func() { _ = payloadFile.Close() }()

	sidecarFile, err := os.Open(v.workspace.ChecksumPath(payloadPath))
	if err != nil {
		return fmt.Errorf("failed to open checksum sidecar: %w", err)
	}
	defer func() { _ = sidecarFile.Close() }()

	checksummed, err := csumio.NewReader(payloadFile, sidecarFile, csumio.DefaultChunkSize)
	if err != nil {
		return err
	}
	progressReader := progress.NewReader(checksummed, entry.ByteSize, payloadPath, v.progressOut)
	if _, err := io.Copy(io.Discard, progressReader); err != nil {
		return err
	}
	return nil
}
