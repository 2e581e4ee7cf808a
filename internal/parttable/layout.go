package parttable

import (
	"fmt"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// ComputeCompactLayout lays the table's entries out contiguously starting
// at firstUsableLBA, in ascending index order, preserving each entry's
// index, type GUID, and partition UUID. sizeOverrides may replace an
// entry's size by index; everything else keeps its archived size. The new
// table's TotalSectors is targetTotalSectors; if the layout does not fit
// inside the target disk's usable region, ComputeCompactLayout fails with
// model.ErrInsufficientSpace.
func ComputeCompactLayout(
	table *model.PartitionTable,
	sizeOverrides map[int]uint64,
	firstUsableLBA uint64,
	targetTotalSectors uint64,
) (*model.PartitionTable, error) {
	if targetTotalSectors <= ReservedTrailingSectors {
		return nil, fmt.Errorf("%w: target disk of %d sectors is smaller than the GPT overhead",
			model.ErrInsufficientSpace, targetTotalSectors)
	}
	lastUsable := targetTotalSectors - ReservedTrailingSectors

	out := table.Clone()
	out.TotalSectors = targetTotalSectors

	next := firstUsableLBA
	for i := range out.Entries {
		e := &out.Entries[i]
		if override, ok := sizeOverrides[e.Index]; ok {
			e.SizeSectors = override
		}
		e.StartSector = next
		next = e.EndSector()
		if next-1 > lastUsable {
			return nil, fmt.Errorf("%w: partition %d ends at sector %d, last usable is %d",
				model.ErrInsufficientSpace, e.Index, next-1, lastUsable)
		}
	}
	return out, nil
}

// ComputeEnlargement grows exactly one entry by extraSectors without
// shifting any other entry. This is only legal for the last entry of the
// layout or for an entry with enough pre-existing trailing free space. If
// extraSectors exceeds freeBudgetSectors, it fails with
// model.ErrOutOfBudget.
func ComputeEnlargement(
	table *model.PartitionTable,
	targetIndex int,
	extraSectors uint64,
	freeBudgetSectors uint64,
) (*model.PartitionTable, error) {
	if extraSectors > freeBudgetSectors {
		return nil, fmt.Errorf("%w: requested %d extra sectors, budget is %d",
			model.ErrOutOfBudget, extraSectors, freeBudgetSectors)
	}

	out := table.Clone()
	target := out.Entry(targetIndex)
	if target == nil {
		return nil, fmt.Errorf("%w: partition %d", model.ErrNotFound, targetIndex)
	}

	newEnd := target.EndSector() + extraSectors
	for _, e := range out.Entries {
		if e.Index != targetIndex && e.StartSector >= target.EndSector() && e.StartSector < newEnd {
			return nil, fmt.Errorf("%w: partition %d has no %d free trailing sectors",
				model.ErrInsufficientSpace, targetIndex, extraSectors)
		}
	}
	if out.TotalSectors > 0 && newEnd-1 > out.TotalSectors-ReservedTrailingSectors {
		return nil, fmt.Errorf("%w: partition %d would end beyond the usable region",
			model.ErrInsufficientSpace, targetIndex)
	}

	target.SizeSectors += extraSectors
	return out, nil
}

// PlanTarget reconstructs an archived table for a target disk under a
// layout policy. The archived identity fields (disk GUID, type GUIDs,
// partition UUIDs) carry over unchanged; only sector geometry moves.
func PlanTarget(
	archived *model.PartitionTable,
	policy model.LayoutPolicy,
	enlargeSectors map[int]uint64,
	targetSectorSize, targetTotalSectors uint64,
) (*model.PartitionTable, error) {
	if archived.SectorSize != 0 && targetSectorSize != 0 && archived.SectorSize != targetSectorSize {
		return nil, fmt.Errorf("sector size mismatch: archived %d, target %d",
			archived.SectorSize, targetSectorSize)
	}

	switch policy {
	case model.LayoutVerbatim:
		if targetTotalSectors <= ReservedTrailingSectors {
			return nil, fmt.Errorf("%w: target disk of %d sectors is smaller than the GPT overhead",
				model.ErrInsufficientSpace, targetTotalSectors)
		}
		out := archived.Clone()
		out.TotalSectors = targetTotalSectors
		lastUsable := targetTotalSectors - ReservedTrailingSectors
		for i := range out.Entries {
			if end := out.Entries[i].EndSector(); end-1 > lastUsable {
				return nil, fmt.Errorf("%w: partition %d ends at sector %d, last usable is %d",
					model.ErrInsufficientSpace, out.Entries[i].Index, end-1, lastUsable)
			}
		}
		return out, nil

	case model.LayoutCompact, model.LayoutEnlargement:
		firstUsable := uint64(2048)
		if len(archived.Entries) > 0 && archived.Entries[0].StartSector < firstUsable {
			firstUsable = archived.Entries[0].StartSector
		}
		out, err := ComputeCompactLayout(archived, nil, firstUsable, targetTotalSectors)
		if err != nil {
			return nil, err
		}
		if policy == model.LayoutCompact {
			return out, nil
		}
		for index, extra := range enlargeSectors {
			entry := out.Entry(index)
			if entry == nil {
				return nil, fmt.Errorf("%w: partition %d", model.ErrNotFound, index)
			}
			if !entry.Filesystem.SupportsResize() {
				return nil, fmt.Errorf("filesystem %q on partition %d does not support resizing",
					entry.Filesystem, index)
			}
			out, err = ComputeEnlargement(out, index, extra, FreeBudget(out))
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown layout policy %q", policy)
	}
}

// FreeBudget returns the number of unallocated usable sectors in the
// table, the budget available to ComputeEnlargement after a compact
// layout.
func FreeBudget(table *model.PartitionTable) uint64 {
	if table.TotalSectors <= ReservedTrailingSectors {
		return 0
	}
	lastUsable := table.TotalSectors - ReservedTrailingSectors
	var maxEnd uint64
	for _, e := range table.Entries {
		if e.EndSector() > maxEnd {
			maxEnd = e.EndSector()
		}
	}
	if maxEnd > lastUsable+1 {
		return 0
	}
	return lastUsable + 1 - maxEnd
}
