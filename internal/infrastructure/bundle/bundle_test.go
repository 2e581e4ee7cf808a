package bundle_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

func sampleTable() *model.PartitionTable {
	return &model.PartitionTable{
		DiskGUID:     "5F8E2B4A-0C6D-4E2A-9B1F-3D7C8A5E6F01",
		SectorSize:   512,
		TotalSectors: 1 << 20,
		Entries: []model.PartitionEntry{
			{Index: 1, StartSector: 2048, SizeSectors: 4096, TypeGUID: "T1", PartitionUUID: "U1", Filesystem: model.FilesystemExt4},
		},
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	// Arrange: a workspace holding a table snapshot, manifest, and one
	// payload with its checksum sidecar.
	ws, err := scratch.New(t.TempDir(), "pack")
	require.NoError(t, err)

	table := sampleTable()
	manifest := &model.Manifest{Entries: []model.ManifestEntry{
		{
			PartitionIndex:  1,
			Filesystem:      model.FilesystemExt4,
			Backend:         "partclone.extfs",
			BackendMode:     model.ModeUsedBlock,
			Codec:           "zstd",
			PayloadFilename: "part1.img.zst",
			Status:          model.StatusOK,
			ByteSize:        11,
		},
	}}
	writeJSON(t, ws.TablePath(), table)
	writeJSON(t, ws.ManifestPath(), manifest)
	payload := ws.PayloadPath(1, ".zst")
	require.NoError(t, os.WriteFile(payload, []byte("fake stream"), 0o644))
	require.NoError(t, os.WriteFile(ws.ChecksumPath(payload), []byte("12345678"), 0o644))

	outPath := filepath.Join(t.TempDir(), "disk.adc")

	// Act
	require.NoError(t, bundle.New().Pack(ws, manifest, outPath))

	dest, err := scratch.New(t.TempDir(), "unpack")
	require.NoError(t, err)
	gotTable, gotManifest, err := bundle.New().Unpack(outPath, dest)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, table, gotTable)
	assert.Equal(t, manifest, gotManifest)
	data, err := os.ReadFile(dest.PayloadPath(1, ".zst"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake stream"), data)
	assert.FileExists(t, dest.ChecksumPath(dest.PayloadPath(1, ".zst")))
}

func TestPack_MissingPayloadFailsWithPackagingError(t *testing.T) {
	ws, err := scratch.New(t.TempDir(), "pack")
	require.NoError(t, err)
	manifest := &model.Manifest{Entries: []model.ManifestEntry{
		{PartitionIndex: 1, PayloadFilename: "part1.img", Status: model.StatusOK},
	}}
	writeJSON(t, ws.TablePath(), sampleTable())
	writeJSON(t, ws.ManifestPath(), manifest)

	err = bundle.New().Pack(ws, manifest, filepath.Join(t.TempDir(), "disk.adc"))
	assert.ErrorIs(t, err, model.ErrPackaging)
}

func TestUnpack_CorruptArchive(t *testing.T) {
	dir := t.TempDir()

	t.Run("not_a_tar", func(t *testing.T) {
		path := filepath.Join(dir, "junk.adc")
		require.NoError(t, os.WriteFile(path, []byte("not a tar stream at all, definitely"), 0o644))
		ws, err := scratch.New(t.TempDir(), "x")
		require.NoError(t, err)

		_, _, err = bundle.New().Unpack(path, ws)
		assert.ErrorIs(t, err, model.ErrCorruptArchive)
	})

	t.Run("zero_successful_entries", func(t *testing.T) {
		ws, err := scratch.New(t.TempDir(), "pack")
		require.NoError(t, err)
		manifest := &model.Manifest{Entries: []model.ManifestEntry{
			{PartitionIndex: 1, Status: model.StatusFailed},
		}}
		writeJSON(t, ws.TablePath(), sampleTable())
		writeJSON(t, ws.ManifestPath(), manifest)
		outPath := filepath.Join(dir, "empty.adc")
		require.NoError(t, bundle.New().Pack(ws, manifest, outPath))

		dest, err := scratch.New(t.TempDir(), "unpack")
		require.NoError(t, err)
		_, _, err = bundle.New().Unpack(outPath, dest)
		assert.ErrorIs(t, err, model.ErrCorruptArchive)
	})
}
