package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grifitth12/absen-siswa/internal/storage"
	"github.com/grifitth12/absen-siswa/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nested", "slots"))
	require.NoError(t, err)
	storagetest.Run(t, s)
}

func TestStorePermissionsAndPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), storage.KeyAuthToken, "tok1"))

	info, err := os.Stat(filepath.Join(dir, storage.KeyAuthToken))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := New(dir)
	require.NoError(t, err)
	value, ok, err := reopened.Get(context.Background(), storage.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", value)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestStoreRejectsPathKeys(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Set(context.Background(), "../escape", "x"))
	_, _, err = s.Get(context.Background(), "a/b")
	assert.Error(t, err)
}
