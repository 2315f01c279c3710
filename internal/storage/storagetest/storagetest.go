// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grifitth12/absen-siswa/internal/storage"
)

// Run exercises s. The store should start empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok, "missing slot")

	require.NoError(t, s.Set(ctx, storage.KeyAuthToken, "tok1"))
	require.NoError(t, s.Set(ctx, storage.KeyUser, `{"role":"student"}`))

	value, ok, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", value)

	require.NoError(t, s.Set(ctx, storage.KeyAuthToken, "tok2"))
	value, _, err = s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok2", value, "a set replaces the previous value")

	require.NoError(t, s.Delete(ctx, storage.KeyAuthToken, storage.KeyUser))
	require.NoError(t, s.Delete(ctx, storage.KeyAuthToken, storage.KeyUser), "deleting missing slots")
	for _, key := range []string{storage.KeyAuthToken, storage.KeyUser} {
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}
