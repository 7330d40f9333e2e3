package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*SQLRepository, *storage.Store) {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.DriverSQLite,
		storage.SQLiteDSN(filepath.Join(t.TempDir(), "vault.db")), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewSQLRepository(s.DB()), s
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyCurrentFolder, "3"))

	v, ok, err := r.Get(ctx, KeyCurrentFolder)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestGet_NotExists(t *testing.T) {
	r, _ := setupRepo(t)

	v, ok, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", "old"))
	require.NoError(t, r.Set(ctx, "k", "new"))

	v, _, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestListDeleteClear(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", "1"))
	require.NoError(t, r.Set(ctx, "b", "2"))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m)

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, m)

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestErrorsWrappedWhenClosed(t *testing.T) {
	r, s := setupRepo(t)
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, _, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get setting[k]")
	require.ErrorContains(t, r.Set(ctx, "k", "v"), "failed to set setting[k]")
	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete setting[k]")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear settings")
	_, err = r.List(ctx)
	require.ErrorContains(t, err, "failed to list settings")
}
