package safety_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/fake"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/safety"
)

func TestIsLiveSource(t *testing.T) {
	inspector := fake.NewDeviceInspector()
	inspector.RootDisk = "/dev/sda"

	live, err := safety.IsLiveSource(inspector, "/dev/sda")
	require.NoError(t, err)
	assert.True(t, live)

	live, err = safety.IsLiveSource(inspector, "/dev/sdb")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestEstimatePayload_UsedSpaceWithFallback(t *testing.T) {
	// Arrange: partition 1 exposes used-space accounting, partition 2 does
	// not and must be counted at full size.
	inspector := fake.NewDeviceInspector()
	inspector.Partitions["/dev/sda"] = map[int]string{1: "/dev/sda1", 2: "/dev/sda2"}
	inspector.Used["/dev/sda1"] = 100 * 512

	table := &model.PartitionTable{
		SectorSize:   512,
		TotalSectors: 1 << 20,
		Entries: []model.PartitionEntry{
			{Index: 1, StartSector: 2048, SizeSectors: 4096},
			{Index: 2, StartSector: 6144, SizeSectors: 8192},
		},
	}

	// Act
	estimate, err := safety.EstimatePayload(inspector, "/dev/sda", table)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, uint64(100*512+8192*512), estimate)
}

func TestValidateCapacity(t *testing.T) {
	cases := []struct {
		name     string
		estimate uint64
		target   uint64
		mode     model.Mode
		wantErr  bool
		warnOnly bool
	}{
		{name: "clone_too_small", estimate: 500e9, target: 400e9, mode: model.ModeClone, wantErr: true, warnOnly: false},
		{name: "clone_fits", estimate: 500e9, target: 600e9, mode: model.ModeClone, wantErr: false},
		{name: "archive_too_small_warns", estimate: 500e9, target: 400e9, mode: model.ModeArchive, wantErr: true, warnOnly: true},
		{name: "restore_too_small_warns", estimate: 500e9, target: 400e9, mode: model.ModeRestore, wantErr: true, warnOnly: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			warnOnly, err := safety.ValidateCapacity(tc.estimate, tc.target, tc.mode)
			if tc.wantErr {
				assert.ErrorIs(t, err, model.ErrInsufficientCapacity)
				assert.Equal(t, tc.warnOnly, warnOnly)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
