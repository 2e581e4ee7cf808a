package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/infrastructure/sqlite"
	"github.com/hyperionsolitude/Advanced-Disk-Cloner/internal/model"
)

func newRepoForTest(t *testing.T) *sqlite.StateRepository {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "state.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestStartOrRestartAction_Lock(t *testing.T) {
	// Arrange
	repo := newRepoForTest(t)
	uid := uuid.New().String()
	otherUID := uuid.New().String()

	// Act & Assert: first acquisition succeeds, a second operation is
	// refused, a retry of the same operation is allowed.
	require.NoError(t, repo.StartOrRestartAction(uid, model.ModeArchive))
	assert.ErrorIs(t, repo.StartOrRestartAction(otherUID, model.ModeRestore), model.ErrBusy)
	assert.NoError(t, repo.StartOrRestartAction(uid, model.ModeArchive))

	// After completion the lock is free.
	require.NoError(t, repo.CompleteAction(uid))
	assert.NoError(t, repo.StartOrRestartAction(otherUID, model.ModeRestore))
}

func TestActionPrivateData_RoundTrip(t *testing.T) {
	repo := newRepoForTest(t)
	uid := uuid.New().String()
	require.NoError(t, repo.StartOrRestartAction(uid, model.ModeRestore))

	data, err := repo.GetActionPrivateData(uid)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, repo.UpdateActionPrivateData(uid, []byte(`{"phase":"extract"}`)))

	data, err = repo.GetActionPrivateData(uid)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"phase":"extract"}`), data)
}

func TestGetActionPrivateData_UnknownUID(t *testing.T) {
	repo := newRepoForTest(t)

	_, err := repo.GetActionPrivateData(uuid.New().String())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOperationRecord_Upsert(t *testing.T) {
	repo := newRepoForTest(t)

	_, err := repo.GetOperationRecord()
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.SetOperationRecord([]byte("v1")))
	require.NoError(t, repo.SetOperationRecord([]byte("v2")))

	data, err := repo.GetOperationRecord()
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}
