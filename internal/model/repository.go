package model

// StateRepository persists the single-operation lock, resumable per-phase
// private data, and the durable record of the last archive operation.
type StateRepository interface {
	// StartOrRestartAction starts or restarts an operation with the given
	// UID and mode. If another operation holds the lock, it returns ErrBusy.
	StartOrRestartAction(uid string, mode Mode) error

	// GetActionPrivateData retrieves the resumable state associated with
	// the given UID. If the UID is not found, it returns ErrNotFound.
	GetActionPrivateData(uid string) ([]byte, error)

	// UpdateActionPrivateData updates the resumable state associated with
	// the given UID.
	UpdateActionPrivateData(uid string, privateData []byte) error

	// CompleteAction marks the operation with the given UID as complete and
	// releases the lock.
	CompleteAction(uid string) error

	// GetOperationRecord retrieves the record of the in-progress archive
	// (snapshot table plus manifest so far). If no record exists, it
	// returns ErrNotFound.
	GetOperationRecord() ([]byte, error)

	// SetOperationRecord stores the operation record.
	SetOperationRecord(record []byte) error
}

// Partitioner applies declarative partition tables and identity overrides
// to a device via the OS partitioning tools.
type Partitioner interface {
	// DumpTable reads the device's live partition table.
	DumpTable(device string) (*PartitionTable, error)

	// ApplyTable writes the table to the device. On failure it returns a
	// *TableWriteError carrying the tool's raw diagnostic.
	ApplyTable(device string, table *PartitionTable) error

	// SetDiskGUID overrides the table's own GUID.
	SetDiskGUID(device, guid string) error

	// SetPartitionIdentity overrides one partition's type GUID and UUID.
	// This is a distinct pass from ApplyTable because a plain table write
	// is not guaranteed to preserve identity fields on every platform.
	SetPartitionIdentity(device string, entry *PartitionEntry) error

	// RepairBackupHeader rewrites the GPT secondary header at the end of
	// the disk.
	RepairBackupHeader(device string) error
}

// DeviceInspector reads live block-device facts from the OS.
type DeviceInspector interface {
	// SizeBytes returns the device's size.
	SizeBytes(device string) (uint64, error)

	// SectorSize returns the device's logical sector size.
	SectorSize(device string) (uint64, error)

	// PartitionDevice maps a whole-disk device and a 1-based partition
	// index to the partition's device path. If the partition does not
	// exist on the disk, it returns ErrNotFound.
	PartitionDevice(disk string, index int) (string, error)

	// Filesystem reports the filesystem kind on a partition device.
	// Unrecognized or absent filesystems report FilesystemUnknown.
	Filesystem(device string) (FilesystemKind, error)

	// IsMounted reports whether the device is currently mounted.
	IsMounted(device string) (bool, error)

	// RootBackingDevice returns the whole-disk device backing the running
	// system's root filesystem.
	RootBackingDevice() (string, error)

	// UsedBytes returns the filesystem used-space of a partition device
	// when the filesystem exposes it. If it does not, it returns
	// ErrNotFound and the caller falls back to the full partition size.
	UsedBytes(device string) (uint64, error)
}

// Workspace is the scratch area leased for the duration of one operation.
type Workspace interface {
	// RootPath returns the scratch directory.
	RootPath() string

	// PayloadPath returns the payload file path for a partition index and
	// codec extension (empty ext means no compression suffix).
	PayloadPath(index int, ext string) string

	// ChecksumPath returns the checksum sidecar path for a payload path.
	ChecksumPath(payloadPath string) string

	// TablePath returns the path of the serialized table snapshot.
	TablePath() string

	// ManifestPath returns the path of the serialized manifest.
	ManifestPath() string

	// DBPath returns the path of the state database.
	DBPath() string

	// Retain marks the scratch area as deliberately kept after a failure
	// so cleanup tooling can distinguish it from leaked directories.
	Retain(reason string) error

	// Retained reports whether the scratch area carries a retain marker.
	Retained() (bool, string)

	// Release removes the scratch area and everything in it.
	Release() error
}

// Bundler packs a scratch area into a single-file streamable archive
// bundle and unpacks it again.
type Bundler interface {
	// Pack writes table snapshot, manifest, and the payload files of the
	// given manifest into a bundle at outPath. A failure returns an error
	// wrapping ErrPackaging and leaves the payload files in place.
	Pack(ws Workspace, manifest *Manifest, outPath string) error

	// Unpack extracts a bundle into the scratch area and returns its table
	// snapshot and manifest. An unreadable or empty manifest returns an
	// error wrapping ErrCorruptArchive.
	Unpack(archivePath string, ws Workspace) (*PartitionTable, *Manifest, error)
}
