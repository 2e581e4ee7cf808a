package parttable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/parttable"
)

const sampleDump = `label: gpt
label-id: 5F8E2B4A-0C6D-4E2A-9B1F-3D7C8A5E6F01
device: /dev/sda
unit: sectors
first-lba: 2048
last-lba: 20971486
sector-size: 512

/dev/sda1 : start=        2048, size=     1048576, type=C12A7328-F81F-11D2-BA4B-00A0C93EC93B, uuid=11111111-2222-3333-4444-555555555555
/dev/sda2 : start=     1050624, size=    19918848, type=0FC63DAF-8483-4772-8E79-3D69D8477DE4, uuid=66666666-7777-8888-9999-AAAAAAAAAAAA
`

func TestParse_SampleDump(t *testing.T) {
	// Act
	table, err := parttable.Parse([]byte(sampleDump))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "5F8E2B4A-0C6D-4E2A-9B1F-3D7C8A5E6F01", table.DiskGUID)
	assert.Equal(t, uint64(512), table.SectorSize)
	assert.Equal(t, uint64(20971486+parttable.ReservedTrailingSectors), table.TotalSectors)
	require.Len(t, table.Entries, 2)

	assert.Equal(t, 1, table.Entries[0].Index)
	assert.Equal(t, uint64(2048), table.Entries[0].StartSector)
	assert.Equal(t, uint64(1048576), table.Entries[0].SizeSectors)
	assert.Equal(t, "C12A7328-F81F-11D2-BA4B-00A0C93EC93B", table.Entries[0].TypeGUID)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", table.Entries[0].PartitionUUID)

	assert.Equal(t, 2, table.Entries[1].Index)
	assert.Equal(t, uint64(1050624), table.Entries[1].StartSector)
	assert.Equal(t, model.FilesystemUnknown, table.Entries[1].Filesystem)
}

func TestParse_RoundTrip(t *testing.T) {
	// Arrange
	table, err := parttable.Parse([]byte(sampleDump))
	require.NoError(t, err)

	// Act
	reparsed, err := parttable.Parse(parttable.Serialize(table))
	require.NoError(t, err)

	// Assert
	assert.Equal(t, table, reparsed)
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		name string
		dump string
	}{
		{name: "empty", dump: ""},
		{name: "no_entries", dump: "label: gpt\nlabel-id: X\n"},
		{name: "dos_label", dump: "label: dos\n/dev/sda1 : start=1, size=2\n"},
		{name: "no_geometry", dump: "label: gpt\n/dev/sda1 : type=X, uuid=Y\n"},
		{name: "bad_start", dump: "label: gpt\n/dev/sda1 : start=abc, size=2\n"},
		{
			name: "bad_disk_guid",
			dump: "label: gpt\nlabel-id: not-a-guid\n/dev/sda1 : start=2048, size=4096\n",
		},
		{
			name: "bad_type_guid",
			dump: "label: gpt\n/dev/sda1 : start=2048, size=4096, type=ZZ63DAF\n",
		},
		{
			name: "bad_partition_uuid",
			dump: "label: gpt\n/dev/sda1 : start=2048, size=4096, uuid=11111111-2222\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parttable.Parse([]byte(tc.dump))
			assert.ErrorIs(t, err, model.ErrMalformedTable)
		})
	}
}

func TestParse_OverlappingEntries(t *testing.T) {
	dump := `label: gpt
/dev/sda1 : start=2048, size=4096
/dev/sda2 : start=4096, size=4096
`
	_, err := parttable.Parse([]byte(dump))
	assert.ErrorIs(t, err, model.ErrMalformedTable)
}
