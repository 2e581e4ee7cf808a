package blockdev

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

const sampleLsblk = `{
  "blockdevices": [
    {
      "name": "sda", "path": "/dev/sda", "size": 500107862016,
      "log-sec": 512, "type": "disk", "mountpoint": null,
      "fsused": null, "partn": null,
      "children": [
        {
          "name": "sda1", "path": "/dev/sda1", "size": 536870912,
          "log-sec": 512, "type": "part", "fstype": "vfat",
          "mountpoint": null, "fsused": null, "partn": 1
        },
        {
          "name": "sda2", "path": "/dev/sda2", "size": 499569991680,
          "log-sec": 512, "type": "part", "fstype": "ext4",
          "mountpoint": "/data", "fsused": 120034123776, "partn": 2
        }
      ]
    }
  ]
}`

type fakeRunner struct {
	responses map[string][]byte
	commands  [][]string
}

func (f *fakeRunner) Run(_ context.Context, command ...string) ([]byte, error) {
	f.commands = append(f.commands, command)
	return f.responses[strings.Join(command, " ")], nil
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: map[string][]byte{
		"lsblk --json -b -o " + lsblkColumns + " /dev/sda":  []byte(sampleLsblk),
		"lsblk --json -b -o " + lsblkColumns + " /dev/sda2": []byte(`{"blockdevices": [{"name": "sda2", "path": "/dev/sda2", "size": 499569991680, "log-sec": 512, "type": "part", "fstype": "ext4", "mountpoint": "/data", "fsused": 120034123776, "partn": 2}]}`),
		"findmnt -no SOURCE /":                              []byte("/dev/nvme0n1p2\n"),
		"lsblk -no PKNAME /dev/nvme0n1p2":                   []byte("nvme0n1\n"),
	}}
}

func TestInspector_DiskFacts(t *testing.T) {
	// Arrange
	inspector := NewInspector(newFakeRunner())

	// Act & Assert
	size, err := inspector.SizeBytes("/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, uint64(500107862016), size)

	sectorSize, err := inspector.SectorSize("/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, uint64(512), sectorSize)

	mounted, err := inspector.IsMounted("/dev/sda")
	require.NoError(t, err)
	assert.True(t, mounted, "a disk with a mounted partition counts as mounted")
}

func TestInspector_PartitionDevice(t *testing.T) {
	// Arrange
	inspector := NewInspector(newFakeRunner())

	// Act
	dev, err := inspector.PartitionDevice("/dev/sda", 2)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "/dev/sda2", dev)

	_, err = inspector.PartitionDevice("/dev/sda", 5)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInspector_UsedBytes(t *testing.T) {
	// Arrange
	inspector := NewInspector(newFakeRunner())

	// Act
	used, err := inspector.UsedBytes("/dev/sda2")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, uint64(120034123776), used)

	_, err = inspector.UsedBytes("/dev/sda")
	assert.ErrorIs(t, err, model.ErrNotFound, "a whole disk exposes no filesystem usage")
}

func TestInspector_Filesystem(t *testing.T) {
	// Arrange
	inspector := NewInspector(newFakeRunner())

	// Act
	kind, err := inspector.Filesystem("/dev/sda2")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.FilesystemExt4, kind)

	kind, err = inspector.Filesystem("/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, model.FilesystemUnknown, kind)
}

func TestInspector_RootBackingDevice(t *testing.T) {
	// Arrange
	inspector := NewInspector(newFakeRunner())

	// Act
	root, err := inspector.RootBackingDevice()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme0n1", root)
}
