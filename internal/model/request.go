package model

import "fmt"

// Mode is the requested operation kind.
type Mode string

const (
	ModeClone   Mode = "clone"
	ModeArchive Mode = "archive"
	ModeRestore Mode = "restore"
)

// LayoutPolicy controls how the partition table is reconstructed on the
// target during restore or clone.
type LayoutPolicy string

const (
	LayoutVerbatim    LayoutPolicy = "verbatim"
	LayoutCompact     LayoutPolicy = "compact"
	LayoutEnlargement LayoutPolicy = "compact_with_enlargement"
)

// ParseLayoutPolicy validates a policy name from the CLI.
func ParseLayoutPolicy(s string) (LayoutPolicy, error) {
	switch LayoutPolicy(s) {
	case LayoutVerbatim, LayoutCompact, LayoutEnlargement:
		return LayoutPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown layout policy %q", s)
	}
}

// OperationRequest is the already-validated decision object handed in by
// the UI layer. It is created once per invocation and immutable for the
// duration of the operation.
type OperationRequest struct {
	Mode Mode

	// SourceDevice is the whole-disk device for clone/archive.
	SourceDevice string

	// Target is the target device (clone, restore) or the archive path
	// (archive output, restore input).
	TargetDevice string
	ArchivePath  string

	// Selection restricts a restore to the given partition indices. A
	// non-empty selection means the target's existing table is trusted and
	// never rewritten.
	Selection []int

	Layout LayoutPolicy

	// EnlargeSectors maps a partition index to extra sectors, applied only
	// under LayoutEnlargement and only for resizable filesystems.
	EnlargeSectors map[int]uint64

	// ConfirmedDestructive acknowledges a destructive or live-source
	// operation. Without it, archiving the running system's disk and any
	// table write to a device are refused.
	ConfirmedDestructive bool
}

// Validate checks the request's internal consistency.
func (r *OperationRequest) Validate() error {
	switch r.Mode {
	case ModeClone:
		if r.SourceDevice == "" || r.TargetDevice == "" {
			return fmt.Errorf("clone requires a source and a target device")
		}
	case ModeArchive:
		if r.SourceDevice == "" || r.ArchivePath == "" {
			return fmt.Errorf("archive requires a source device and an archive path")
		}
	case ModeRestore:
		if r.ArchivePath == "" || r.TargetDevice == "" {
			return fmt.Errorf("restore requires an archive path and a target device")
		}
	default:
		return fmt.Errorf("unknown operation mode %q", r.Mode)
	}
	if len(r.Selection) > 0 && r.Mode != ModeRestore {
		return fmt.Errorf("partition selection is only valid for restore")
	}
	if len(r.EnlargeSectors) > 0 && r.Layout != LayoutEnlargement {
		return fmt.Errorf("size deltas require the %s layout policy", LayoutEnlargement)
	}
	return nil
}

// Selected reports whether index is in the partial-restore selection. An
// empty selection selects everything.
func (r *OperationRequest) Selected(index int) bool {
	if len(r.Selection) == 0 {
		return true
	}
	for _, i := range r.Selection {
		if i == index {
			return true
		}
	}
	return false
}
