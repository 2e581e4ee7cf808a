package verify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/bundle"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/codec"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/scratch"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/archive"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/input"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/testutil"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/job/verify"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/pkg/csumio"
)

func makeArchive(t *testing.T, env *testutil.Env) string {
	t.Helper()
	env.SourceDisk(t, "/dev/sda")
	archivePath := filepath.Join(t.TempDir(), "sda.adc")
	c, err := codec.ByName("zstd")
	require.NoError(t, err)
	a := archive.NewArchive(&input.Archive{
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
	require.NoError(t, a.Perform(context.Background()))
	return archivePath
}

func newVerify(t *testing.T, archivePath string) *verify.Verify {
	t.Helper()
	ws, err := scratch.New(t.TempDir(), uuid.NewString())
	require.NoError(t, err)
	return verify.NewVerify(&input.Verify{
		Bundler:     bundle.New(),
		Workspace:   ws,
		ArchivePath: archivePath,
	})
}

func TestVerify_IntactArchive(t *testing.T) {
	// Arrange
	env := testutil.NewEnv(t)
	archivePath := makeArchive(t, env)

	// Act
	err := newVerify(t, archivePath).Perform(context.Background())

	// Assert
	assert.NoError(t, err)
}

func TestVerify_CorruptPayload(t *testing.T) {
	// Arrange: flip bytes inside one payload before packing.
	env := testutil.NewEnv(t)
	env.SourceDisk(t, "/dev/sda")
	archivePath := filepath.Join(t.TempDir(), "sda.adc")
	c, err := codec.ByName("zstd")
	require.NoError(t, err)
	a := archive.NewArchive(&input.Archive{
		Repo:        env.Repo,
		Inspector:   env.Inspector,
		Partitioner: env.Partitioner,
		Registry:    env.Registry,
		Backends:    env.Backends,
		Bundler:     corruptingBundler{bundle.New()},
		Workspace:   env.Workspace,
		Codec:       c,
		ActionUID:   env.ActionUID,
		Request: &model.OperationRequest{
			Mode:         model.ModeArchive,
			SourceDevice: "/dev/sda",
			ArchivePath:  archivePath,
		},
	})
	require.NoError(t, a.Perform(context.Background()))

	// Act
	err = newVerify(t, archivePath).Perform(context.Background())

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, csumio.ErrChecksumMismatch)
}

// corruptingBundler damages partition 2's payload just before packing,
// simulating bit rot between imaging and bundling.
type corruptingBundler struct {
	*bundle.Bundler
}

func (b corruptingBundler) Pack(ws model.Workspace, manifest *model.Manifest, outPath string) error {
	path := ws.PayloadPath(2, ".zst")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return b.Bundler.Pack(ws, manifest, outPath)
}
