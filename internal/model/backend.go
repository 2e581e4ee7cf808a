package model

import (
	"context"
	"io"
)

// BackendMode distinguishes the two imaging families. A used-block image is
// not a valid raw byte stream, so the mode recorded at archive time must be
// honored at restore time.
type BackendMode string

const (
	ModeUsedBlock BackendMode = "used-block"
	ModeRaw       BackendMode = "raw"
)

// CapabilityBackend describes one imaging backend candidate for a
// filesystem kind. Availability is a static fact gathered once at startup;
// it is never re-probed during an operation.
type CapabilityBackend struct {
	Kind            FilesystemKind
	Name            string
	Mode            BackendMode
	Available       bool
	MountCompatible bool
}

// ImagingBackend is a streaming save/restore capability for one partition.
// Both directions are forward-only byte streams; a backend never seeks in
// the stream, so a mid-stream failure invalidates the whole attempt for
// that partition.
type ImagingBackend interface {
	// Name returns the backend name as recorded in the manifest.
	Name() string

	// Mode returns the backend family (used-block or raw).
	Mode() BackendMode

	// Save images the partition device into w. A non-nil error means the
	// stream is incomplete and must be discarded.
	Save(ctx context.Context, device string, w io.Writer) error

	// Restore writes the image stream r back to the partition device.
	// The stream must have been produced by a backend of the same mode.
	Restore(ctx context.Context, r io.Reader, device string) error
}
