package model

import (
	"fmt"
	"slices"
)

// GPT reserves the protective structures at the end of the disk: 32 sectors
// of backup entries, one backup header, and one alignment sector. The last
// usable LBA is TotalSectors - ReservedTrailingSectors.
const ReservedTrailingSectors = 34

// FilesystemKind identifies the filesystem hosted on a partition as far as
// imaging backend selection is concerned.
type FilesystemKind string

const (
	FilesystemExt4    FilesystemKind = "ext4"
	FilesystemNTFS    FilesystemKind = "ntfs"
	FilesystemAPFS    FilesystemKind = "apfs"
	FilesystemHFSPlus FilesystemKind = "hfsplus"
	FilesystemUnknown FilesystemKind = "unknown"
)

// ParseFilesystemKind maps a probed filesystem name (as reported by lsblk)
// to a FilesystemKind. Unrecognized names map to FilesystemUnknown rather
// than failing; an unknown filesystem is still imageable with the raw
// backend.
func ParseFilesystemKind(name string) FilesystemKind {
	switch name {
	case "ext4", "ext3", "ext2":
		return FilesystemExt4
	case "ntfs", "ntfs3":
		return FilesystemNTFS
	case "apfs":
		return FilesystemAPFS
	case "hfsplus", "hfs+":
		return FilesystemHFSPlus
	default:
		return FilesystemUnknown
	}
}

// SupportsResize reports whether the filesystem can be grown after a
// restore, which is a precondition for the enlargement layout policy.
func (k FilesystemKind) SupportsResize() bool {
	return k == FilesystemExt4 || k == FilesystemNTFS
}

// PartitionEntry is one row of a GPT partition table. Index is the 1-based
// stable identity of the partition; start/size and the identity fields are
// mutated only by the restore orchestrator's layout recomputation.
type PartitionEntry struct {
	Index         int            `json:"index"`
	StartSector   uint64         `json:"startSector"`
	SizeSectors   uint64         `json:"sizeSectors"`
	TypeGUID      string         `json:"typeGUID"`
	PartitionUUID string         `json:"partitionUUID"`
	Filesystem    FilesystemKind `json:"filesystem"`
}

// EndSector returns the first sector after the entry.
func (e *PartitionEntry) EndSector() uint64 {
	return e.StartSector + e.SizeSectors
}

// PartitionTable is the in-memory model of a disk's GPT layout together
// with the identity metadata that must survive archive and restore.
type PartitionTable struct {
	DiskGUID     string           `json:"diskGUID"`
	SectorSize   uint64           `json:"sectorSize"`
	TotalSectors uint64           `json:"totalSectors"`
	Entries      []PartitionEntry `json:"entries"`
}

// Validate checks the table invariants: entries sorted by index with no
// duplicates, no overlapping sector ranges, and every entry inside
// [0, TotalSectors).
func (t *PartitionTable) Validate() error {
	if t.TotalSectors > 0 && t.TotalSectors <= ReservedTrailingSectors {
		return fmt.Errorf("%w: disk of %d sectors has no usable region after the GPT overhead",
			ErrMalformedTable, t.TotalSectors)
	}
	if !slices.IsSortedFunc(t.Entries, func(a, b PartitionEntry) int {
		return a.Index - b.Index
	}) {
		return fmt.Errorf("%w: entries are not sorted by index", ErrMalformedTable)
	}
	for i, e := range t.Entries {
		if e.Index < 1 {
			return fmt.Errorf("%w: entry index %d is not 1-based", ErrMalformedTable, e.Index)
		}
		if i > 0 && t.Entries[i-1].Index == e.Index {
			return fmt.Errorf("%w: duplicate entry index %d", ErrMalformedTable, e.Index)
		}
		if e.SizeSectors == 0 {
			return fmt.Errorf("%w: entry %d has zero size", ErrMalformedTable, e.Index)
		}
		if t.TotalSectors > 0 && e.EndSector() > t.TotalSectors {
			return fmt.Errorf("%w: entry %d ends at sector %d beyond disk end %d",
				ErrMalformedTable, e.Index, e.EndSector(), t.TotalSectors)
		}
		for _, other := range t.Entries[:i] {
			if e.StartSector < other.EndSector() && other.StartSector < e.EndSector() {
				return fmt.Errorf("%w: entries %d and %d overlap", ErrMalformedTable, other.Index, e.Index)
			}
		}
	}
	return nil
}

// Entry returns a pointer to the entry with the given index, or nil.
func (t *PartitionTable) Entry(index int) *PartitionEntry {
	for i := range t.Entries {
		if t.Entries[i].Index == index {
			return &t.Entries[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the table.
func (t *PartitionTable) Clone() *PartitionTable {
	c := *t
	c.Entries = slices.Clone(t.Entries)
	return &c
}
