package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grifitth12/absen-siswa/internal/storage"
	"github.com/grifitth12/absen-siswa/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	s, err := New(Options{Path: filepath.Join(t.TempDir(), "absen.db")})
	require.NoError(t, err)
	defer s.Close()
	storagetest.Run(t, s)
}

func TestStoreBucketsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absen.db")
	ctx := context.Background()

	a, err := New(Options{Path: path, Bucket: "school-a"})
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, storage.KeyAuthToken, "tok-a"))
	require.NoError(t, a.Close())

	b, err := New(Options{Path: path, Bucket: "school-b"})
	require.NoError(t, err)
	defer b.Close()
	_, ok, err := b.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
