// Package safety vets operation requests before any byte is written:
// live-source detection, payload estimation, and capacity validation.
package safety

import (
	"errors"
	"fmt"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// IsLiveSource reports whether the source device backs the currently
// running system's root filesystem. Archiving a live source requires
// explicit confirmation; mutating one is refused unconditionally.
func IsLiveSource(inspector model.DeviceInspector, sourceDevice string) (bool, error) {
	rootDisk, err := inspector.RootBackingDevice()
	if err != nil {
		// No detectable root backing device, e.g. an initramfs or
		// network-root environment. Nothing on disk is live then.
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to detect the root backing device: %w", err)
	}
	return rootDisk == sourceDevice, nil
}

// EstimatePayload sums each partition's used space where the filesystem
// exposes it, falling back to the full partition size otherwise. This is
// advisory sizing, not a reservation: the actual archive size differs with
// compression.
func EstimatePayload(inspector model.DeviceInspector, disk string, table *model.PartitionTable) (uint64, error) {
	var total uint64
	for _, e := range table.Entries {
		full := e.SizeSectors * table.SectorSize

		dev, err := inspector.PartitionDevice(disk, e.Index)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				total += full
				continue
			}
			return 0, fmt.Errorf("failed to resolve partition %d device: %w", e.Index, err)
		}

		used, err := inspector.UsedBytes(dev)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				total += full
				continue
			}
			return 0, fmt.Errorf("failed to query used bytes of %s: %w", dev, err)
		}
		if used > full {
			used = full
		}
		total += used
	}
	return total, nil
}

// ValidateCapacity compares the estimate against the target capacity. For
// clone the check is a hard gate: a clone to a smaller target is refused
// before any byte is written. For archive and restore the compressed size
// is unknown in advance, so ValidateCapacity returns the error only as a
// warning (warnOnly=true in the result).
func ValidateCapacity(estimate, targetBytes uint64, mode model.Mode) (warnOnly bool, err error) {
	if estimate <= targetBytes {
		return false, nil
	}
	err = fmt.Errorf("%w: estimated %d bytes, target holds %d bytes",
		model.ErrInsufficientCapacity, estimate, targetBytes)
	if mode == model.ModeClone {
		return false, err
	}
	return true, err
}
