package fake

import (
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

// DeviceInspector is an in-memory model.DeviceInspector for tests.
type DeviceInspector struct {
	Sizes       map[string]uint64
	SectorSizes map[string]uint64
	// Partitions maps disk -> partition index -> partition device path.
	Partitions map[string]map[int]string
	// Filesystems maps partition device -> filesystem kind. Devices
	// absent from the map report FilesystemUnknown.
	Filesystems map[string]model.FilesystemKind
	Mounted     map[string]bool
	RootDisk    string
	// Used maps partition device -> used bytes. Devices absent from the
	// map report model.ErrNotFound, exercising the full-size fallback.
	Used map[string]uint64
}

var _ model.DeviceInspector = &DeviceInspector{}

func NewDeviceInspector() *DeviceInspector {
	return &DeviceInspector{
		Sizes:       make(map[string]uint64),
		SectorSizes: make(map[string]uint64),
		Partitions:  make(map[string]map[int]string),
		Filesystems: make(map[string]model.FilesystemKind),
		Mounted:     make(map[string]bool),
		Used:        make(map[string]uint64),
	}
}

func (d *DeviceInspector) SizeBytes(device string) (uint64, error) {
	size, ok := d.Sizes[device]
	if !ok {
		return 0, model.ErrNotFound
	}
	return size, nil
}

func (d *DeviceInspector) SectorSize(device string) (uint64, error) {
	size, ok := d.SectorSizes[device]
	if !ok {
		return 512, nil
	}
	return size, nil
}

func (d *DeviceInspector) PartitionDevice(disk string, index int) (string, error) {
	parts, ok := d.Partitions[disk]
	if !ok {
		return "", model.ErrNotFound
	}
	dev, ok := parts[index]
	if !ok {
		return "", model.ErrNotFound
	}
	return dev, nil
}

func (d *DeviceInspector) Filesystem(device string) (model.FilesystemKind, error) {
	kind, ok := d.Filesystems[device]
	if !ok {
		return model.FilesystemUnknown, nil
	}
	return kind, nil
}

func (d *DeviceInspector) IsMounted(device string) (bool, error) {
	return d.Mounted[device], nil
}

func (d *DeviceInspector) RootBackingDevice() (string, error) {
	if d.RootDisk == "" {
		return "", model.ErrNotFound
	}
	return d.RootDisk, nil
}

func (d *DeviceInspector) UsedBytes(device string) (uint64, error) {
	used, ok := d.Used[device]
	if !ok {
		return 0, model.ErrNotFound
	}
	return used, nil
}
