// Package testutil builds the common fixture for job tests: a real
// scratch workspace and state database under t.TempDir, fake device
// infrastructure, and a registry that resolves the fake backends.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/fake"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sqlite"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

type Env struct {
	ActionUID   string
	Workspace   *scratch.Workspace
	Repo        *sqlite.StateRepository
	Inspector   *fake.DeviceInspector
	Partitioner *fake.Partitioner
	UsedBlock   *fake.ImagingBackend
	Raw         *fake.ImagingBackend
	Registry    *registry.Registry
	Backends    map[string]model.ImagingBackend
}

// NewEnv builds the fixture. The registry probes report only
// partclone.extfs as installed, so ext4 resolves to the used-block fake
// and everything else falls back to the raw fake.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	actionUID := uuid.NewString()
	ws, err := scratch.New(t.TempDir(), actionUID)
	require.NoError(t, err)

	repo, err := sqlite.New(ws.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	usedBlock := fake.NewImagingBackend("partclone.extfs", model.ModeUsedBlock)
	raw := fake.NewImagingBackend("raw", model.ModeRaw)
	reg := registry.New(registry.DefaultConfig(), func(tool string) bool {
		return tool == "partclone.extfs"
	})

	return &Env{
		ActionUID:   actionUID,
		Workspace:   ws,
		Repo:        repo,
		Inspector:   fake.NewDeviceInspector(),
		Partitioner: fake.NewPartitioner(),
		UsedBlock:   usedBlock,
		Raw:         raw,
		Registry:    reg,
		Backends: map[string]model.ImagingBackend{
			"partclone.extfs": usedBlock,
			"raw":             raw,
		},
	}
}

// SourceDisk seeds the inspector and partitioner with a two-partition
// source disk: an ext4 partition served by the used-block fake and an
// unknown-filesystem partition served by the raw fake.
func (e *Env) SourceDisk(t *testing.T, disk string) *model.PartitionTable {
	t.Helper()

	table := &model.PartitionTable{
		DiskGUID:     "5F8E2B4A-0C6D-4E2A-9B1F-3D7C8A5E6F01",
		SectorSize:   512,
		TotalSectors: 20971520,
		Entries: []model.PartitionEntry{
			{
				Index:         1,
				StartSector:   2048,
				SizeSectors:   1048576,
				TypeGUID:      "C12A7328-F81F-11D2-BA4B-00A0C93EC93B",
				PartitionUUID: "11111111-2222-3333-4444-555555555555",
			},
			{
				Index:         2,
				StartSector:   1050624,
				SizeSectors:   8388608,
				TypeGUID:      "0FC63DAF-8483-4772-8E79-3D69D8477DE4",
				PartitionUUID: "66666666-7777-8888-9999-AAAAAAAAAAAA",
			},
		},
	}
	e.Partitioner.Tables[disk] = table

	e.Inspector.Sizes[disk] = table.TotalSectors * 512
	e.Inspector.SectorSizes[disk] = 512
	e.Inspector.Partitions[disk] = map[int]string{
		1: disk + "1",
		2: disk + "2",
	}
	e.Inspector.Filesystems[disk+"2"] = model.FilesystemExt4
	e.Inspector.Used[disk+"2"] = 64 << 20

	e.UsedBlock.Contents[disk+"2"] = []byte("ext4 partition image")
	e.Raw.Contents[disk+"1"] = []byte("esp raw image")
	return table
}

// TargetDisk seeds the inspector with an empty target disk of the given
// sector count whose partitions appear once a table is applied.
func (e *Env) TargetDisk(disk string, totalSectors uint64) {
	e.Inspector.Sizes[disk] = totalSectors * 512
	e.Inspector.SectorSizes[disk] = 512
	e.Inspector.Partitions[disk] = map[int]string{
		1: disk + "1",
		2: disk + "2",
	}
}
