package folders

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.DriverSQLite,
		storage.SQLiteDSN(filepath.Join(t.TempDir(), "vault.db")), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetByID(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	rootID, err := r.Create(ctx, &models.Folder{Name: "Vault", Description: "root", CreatedAt: now})
	require.NoError(t, err)
	childID, err := r.Create(ctx, &models.Folder{Name: "Docs", ParentID: &rootID, CreatedAt: now})
	require.NoError(t, err)
	assert.NotEqual(t, rootID, childID)

	root, err := r.GetByID(ctx, rootID)
	require.NoError(t, err)
	assert.Equal(t, "Vault", root.Name)
	assert.Equal(t, "root", root.Description)
	assert.Nil(t, root.ParentID)
	assert.True(t, now.Equal(root.CreatedAt), "got %v", root.CreatedAt)

	child, err := r.GetByID(ctx, childID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, rootID, *child.ParentID)
}

func TestCreate_UnknownParentFails(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())

	_, err := r.Create(context.Background(), &models.Folder{Name: "x", ParentID: models.Int64Ptr(42), CreatedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert folder")
}

func TestGetByID_NotFound(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())

	_, err := r.GetByID(context.Background(), 1)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetAll_OrderedByName(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())
	ctx := context.Background()

	for _, n := range []string{"b", "c", "a"} {
		_, err := r.Create(ctx, &models.Folder{Name: n, CreatedAt: time.Now()})
		require.NoError(t, err)
	}

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
	assert.Equal(t, "c", all[2].Name)
}

func TestGetAll_RowInsertedWithDefaults(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `INSERT INTO folders (name) VALUES ('External')`)
	require.NoError(t, err)

	all, err := NewSQLRepository(s.DB()).GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "", all[0].Description)
	assert.False(t, all[0].CreatedAt.IsZero())
}

func TestUpdateAndDelete_RowsAffected(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())
	ctx := context.Background()

	id, err := r.Create(ctx, &models.Folder{Name: "old", CreatedAt: time.Now()})
	require.NoError(t, err)

	n, err := r.Update(ctx, id, "new", "desc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.Update(ctx, id+100, "x", "")
	require.NoError(t, err)
	assert.Zero(t, n)

	f, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", f.Name)
	assert.Equal(t, "desc", f.Description)

	n, err = r.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErrorsWrappedWhenClosed(t *testing.T) {
	s := setupStore(t)
	r := NewSQLRepository(s.DB())
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err := r.GetAll(ctx)
	require.ErrorContains(t, err, "failed to list folders")

	_, err = r.Update(ctx, 1, "a", "")
	require.ErrorContains(t, err, "failed to update folder 1")

	_, err = r.Delete(ctx, 1)
	require.ErrorContains(t, err, "failed to delete folder 1")
}
