package model

import (
	"errors"
	"fmt"
)

var (
	ErrBusy          = errors.New("repository is busy")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

// Operation-level error taxonomy. Per-partition imaging failures are not
// represented here; they are recorded in the manifest and the operation
// continues. These errors abort the operation (or, for
// ErrInsufficientCapacity outside clone mode, downgrade to a warning).
var (
	ErrMalformedTable        = errors.New("malformed partition table dump")
	ErrInsufficientSpace     = errors.New("insufficient space on target disk")
	ErrOutOfBudget           = errors.New("enlargement exceeds free sector budget")
	ErrPackaging             = errors.New("failed to package archive bundle")
	ErrCorruptArchive        = errors.New("corrupt or empty archive")
	ErrBackendMismatch       = errors.New("manifest backend does not match restore backend")
	ErrInsufficientCapacity  = errors.New("target capacity is smaller than the estimated payload")
	ErrLiveSourceUnconfirmed = errors.New("source hosts the running system and the operation was not confirmed")
)

// TableWriteError is returned when applying a partition table to a device
// fails. It carries the raw diagnostic from the partitioning tool because a
// half-applied table makes every subsequent per-partition target resolution
// meaningless and the operator needs the tool output to recover.
type TableWriteError struct {
	Device     string
	Diagnostic string
	Err        error
}

func (e *TableWriteError) Error() string {
	return fmt.Sprintf("failed to write partition table to %s: %v: %s", e.Device, e.Err, e.Diagnostic)
}

func (e *TableWriteError) Unwrap() error {
	return e.Err
}
