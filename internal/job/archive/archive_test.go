package archive_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/archive"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/testutil"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

func newArchive(t *testing.T, env *testutil.Env, archivePath string) *archive.Archive {
	t.Helper()
	c, err := codec.ByName("zstd")
	require.NoError(t, err)
	return archive.NewArchive(&input.Archive{
		Repo:        env.Repo,
		Inspector:   env.Inspector,
		Partitioner: env.Partitioner,
		Registry:    env.Registry,
		Backends:    env.Backends,
		Bundler:     bundle.New(),
		Workspace:   env.Workspace,
		Codec:       c,
		ActionUID:   env.ActionUID,
		Request: &model.OperationRequest{
			Mode:         model.ModeArchive,
			SourceDevice: "/dev/sda",
			ArchivePath:  archivePath,
		},
	})
}

func TestArchive_Success(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	archivePath := filepath.Join(t.TempDir(), "sda.adc")
	a := newArchive(t, env, archivePath)

	// Act
	err := a.Perform(context.Background())
	require.NoError(t, err)

	// Assert
	_, err = os.Stat(archivePath)
	require.NoError(t, err)

	ws, err := scratch.New(t.TempDir(), uuid.NewString())
	require.NoError(t, err)
	table, manifest, err := bundle.New().Unpack(archivePath, ws)
	require.NoError(t, err)

	assert.Equal(t, "5F8E2B4A-0C6D-4E2A-9B1F-3D7C8A5E6F01", table.DiskGUID)
	require.Len(t, manifest.Entries, 2)

	first := manifest.Entry(1)
	require.NotNil(t, first)
	assert.Equal(t, model.StatusOK, first.Status)
	assert.Equal(t, "raw", first.Backend)
	assert.Equal(t, model.ModeRaw, first.BackendMode)
	assert.Equal(t, model.FilesystemUnknown, first.Filesystem)

	second := manifest.Entry(2)
	require.NotNil(t, second)
	assert.Equal(t, model.StatusOK, second.Status)
	assert.Equal(t, "partclone.extfs", second.Backend)
	assert.Equal(t, model.ModeUsedBlock, second.BackendMode)
	assert.Equal(t, model.FilesystemExt4, second.Filesystem)
	assert.Equal(t, "zstd", second.Codec)
	assert.NotZero(t, second.ByteSize)
}

func TestArchive_PartitionFailureContinues(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	env.UsedBlock.FailSave["/dev/sda2"] = errors.New("imaging tool exited 1")
	archivePath := filepath.Join(t.TempDir(), "sda.adc")
	a := newArchive(t, env, archivePath)

	// Act
	err := a.Perform(context.Background())
	require.NoError(t, err, "one failed partition must not abort the archive")

	// Assert
	ws, err := scratch.New(t.TempDir(), uuid.NewString())
	require.NoError(t, err)
	_, manifest, err := bundle.New().Unpack(archivePath, ws)
	require.NoError(t, err)

	require.Len(t, manifest.Entries, 2)
	assert.Equal(t, model.StatusOK, manifest.Entry(1).Status)
	assert.Equal(t, model.StatusFailed, manifest.Entry(2).Status)
	assert.Equal(t, []int{2}, manifest.FailedIndices())

	// The failed partition's partial payload is not in the scratch area.
	_, err = os.Stat(env.Workspace.PayloadPath(2, ".zst"))
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_AllPartitionsFailed(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	env.UsedBlock.FailSave["/dev/sda2"] = errors.New("imaging tool exited 1")
	env.Raw.FailSave["/dev/sda1"] = errors.New("read error")
	a := newArchive(t, env, filepath.Join(t.TempDir(), "sda.adc"))

	// Act
	err := a.Perform(context.Background())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCorruptArchive)
}

func TestArchive_CanceledStopsAtPartitionBoundary(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	a := newArchive(t, env, filepath.Join(t.TempDir(), "sda.adc"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := a.Perform(ctx)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The second partition was never attempted.
	assert.Zero(t, env.UsedBlock.SaveCalls["/dev/sda2"])

	// The in-flight partition is recorded as failed, so a later rerun or
	// inspection sees the truncated outcome.
	record, err := job.GetOperationRecord(env.Repo)
	require.NoError(t, err)
	first := record.Manifest.Entry(1)
	require.NotNil(t, first)
	assert.Equal(t, model.StatusFailed, first.Status)
	assert.Nil(t, record.Manifest.Entry(2))
}

func TestArchive_CantLock(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	require.NoError(t, env.Repo.StartOrRestartAction(uuid.NewString(), model.ModeRestore))
	a := newArchive(t, env, filepath.Join(t.TempDir(), "sda.adc"))

	// Act
	err := a.Perform(context.Background())

	// Assert
	assert.ErrorIs(t, err, job.ErrCantLock)
}

func TestArchive_LiveSourceUnconfirmed(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	env.Inspector.RootDisk = "/dev/sda"
	a := newArchive(t, env, filepath.Join(t.TempDir(), "sda.adc"))

	// Act
	err := a.Perform(context.Background())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrLiveSourceUnconfirmed)
}

func TestArchive_ResumeDoesNotReimage(t *testing.T) {
	// Arrange: packing fails because the output directory does not exist.
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	outDir := filepath.Join(t.TempDir(), "missing")
	archivePath := filepath.Join(outDir, "sda.adc")
	a := newArchive(t, env, archivePath)

	err := a.Perform(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPackaging)

	// Act: the directory appears and the same action is retried.
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	err = a.Perform(context.Background())
	require.NoError(t, err)

	// Assert: both partitions were imaged exactly once across both runs.
	assert.Equal(t, 1, env.UsedBlock.SaveCalls["/dev/sda2"])
	assert.Equal(t, 1, env.Raw.SaveCalls["/dev/sda1"])
	_, err = os.Stat(archivePath)
	require.NoError(t, err)
}
