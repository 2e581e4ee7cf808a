// Package job holds the pieces shared by all operation jobs: the lock
// error, the durable operation record, and backend resolution.
package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

var ErrCantLock = errors.New("can't lock")

// OperationRecord is the durable record of an operation: the partition
// table snapshot taken at start and the manifest accumulated so far. It
// survives process restarts, so a resumed run continues from the same
// table and never re-images a partition that already has an outcome.
type OperationRecord struct {
	Mode         model.Mode            `json:"mode"`
	SourceDevice string                `json:"sourceDevice,omitempty"`
	TargetDevice string                `json:"targetDevice,omitempty"`
	ArchivePath  string                `json:"archivePath,omitempty"`
	Table        *model.PartitionTable `json:"table,omitempty"`
	// Plan is the table recomputed for the target under the layout
	// policy. Nil until planning runs; nil forever for partial restores.
	Plan      *model.PartitionTable `json:"plan,omitempty"`
	Manifest  *model.Manifest       `json:"manifest,omitempty"`
	StartedAt time.Time             `json:"startedAt"`
}

func GetOperationRecord(repo model.StateRepository) (*OperationRecord, error) {
	data, err := repo.GetOperationRecord()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation record: %w", err)
	}

	var record OperationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation record: %w", err)
	}
	return &record, nil
}

func SetOperationRecord(repo model.StateRepository, record *OperationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal operation record: %w", err)
	}
	if err := repo.SetOperationRecord(data); err != nil {
		return fmt.Errorf("failed to set operation record: %w", err)
	}
	return nil
}

// ResolveBackend picks the imaging backend for one partition: the first
// registry candidate that has a constructed backend instance. The raw
// fallback is always a candidate, so resolution only fails when the
// backend set was built without it.
func ResolveBackend(
	reg *registry.Registry,
	backends map[string]model.ImagingBackend,
	kind model.FilesystemKind,
	isMounted bool,
) (model.ImagingBackend, error) {
	for _, candidate := range reg.Resolve(kind, isMounted) {
		if backend, ok := backends[candidate.Name]; ok {
			return backend, nil
		}
	}
	return nil, fmt.Errorf("no usable imaging backend for filesystem %q", kind)
}
