package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/registry"
)

func allAvailable(string) bool  { return true }
func noneAvailable(string) bool { return false }

func TestResolve_PreferenceOrder(t *testing.T) {
	// Arrange
	reg := registry.New(registry.DefaultConfig(), allAvailable)

	// Act
	backends := reg.Resolve(model.FilesystemNTFS, false)

	// Assert: used-block candidates in config order, raw appended last.
	require.Len(t, backends, 3)
	assert.Equal(t, "partclone.ntfs", backends[0].Name)
	assert.Equal(t, model.ModeUsedBlock, backends[0].Mode)
	assert.Equal(t, "ntfsclone", backends[1].Name)
	assert.Equal(t, registry.RawBackendName, backends[2].Name)
	assert.Equal(t, model.ModeRaw, backends[2].Mode)
}

func TestResolve_MountedExcludesUsedBlock(t *testing.T) {
	reg := registry.New(registry.DefaultConfig(), allAvailable)

	backends := reg.Resolve(model.FilesystemExt4, true)

	require.Len(t, backends, 1)
	assert.Equal(t, registry.RawBackendName, backends[0].Name)
}

func TestResolve_UnavailableToolsDropped(t *testing.T) {
	reg := registry.New(registry.DefaultConfig(), noneAvailable)

	backends := reg.Resolve(model.FilesystemExt4, false)

	require.Len(t, backends, 1)
	assert.Equal(t, registry.RawBackendName, backends[0].Name)
}

func TestResolve_UnknownFilesystemRawOnly(t *testing.T) {
	reg := registry.New(registry.DefaultConfig(), allAvailable)

	backends := reg.Resolve(model.FilesystemUnknown, false)

	require.Len(t, backends, 1)
	assert.Equal(t, model.ModeRaw, backends[0].Mode)
}

func TestResolve_MountCompatibleSurvivesMount(t *testing.T) {
	cfg := &registry.Config{
		Backends: map[model.FilesystemKind][]registry.BackendConfig{
			model.FilesystemExt4: {
				{Name: "snapshotting-imager", MountCompatible: true},
			},
		},
	}
	reg := registry.New(cfg, allAvailable)

	backends := reg.Resolve(model.FilesystemExt4, true)

	require.Len(t, backends, 2)
	assert.Equal(t, "snapshotting-imager", backends[0].Name)
}

func TestLoadConfig_File(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "backends.yaml")
	content := `backends:
  ext4:
    - name: partclone.extfs
      tool: /opt/partclone/partclone.extfs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// Act
	cfg, err := registry.LoadConfig(path)
	require.NoError(t, err)

	// Assert
	require.Len(t, cfg.Backends[model.FilesystemExt4], 1)
	assert.Equal(t, "/opt/partclone/partclone.extfs", cfg.Backends[model.FilesystemExt4][0].Tool)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := registry.LoadConfig("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Backends[model.FilesystemExt4])
}
