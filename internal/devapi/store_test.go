package devapi

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(bcrypt.MinCost)
	require.NoError(t, Seed(store, DefaultSeed))
	return store
}

func (s *Store) active(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[code].Active
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)

	u, err := store.Authenticate("123", "4321")
	require.NoError(t, err)
	assert.Equal(t, "Siti Aminah", u.FullName)

	_, err = store.Authenticate("123", "wrong")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.Authenticate("999", "4321")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddUserAssignsIDs(t *testing.T) {
	store := newTestStore(t)
	u, err := store.AddUser(User{NISN: "125", Role: "student"}, "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.ID)
}

func TestCloseExpired(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)

	short, err := store.CreateCode(3, t0, time.Minute, 0)
	require.NoError(t, err)
	long, err := store.CreateCode(3, t0, time.Hour, 0)
	require.NoError(t, err)
	assert.NotEqual(t, short.Code, long.Code)

	assert.Equal(t, 1, store.CloseExpired(t0.Add(2*time.Minute)))
	assert.False(t, store.active(short.Code))
	assert.True(t, store.active(long.Code))
	assert.Equal(t, 0, store.CloseExpired(t0.Add(3*time.Minute)))

	_, err = store.Redeem(1, short.Code, t0.Add(30*time.Second))
	assert.ErrorIs(t, err, ErrCodeExpired, "a closed code stays closed")
}

func TestExpiryJob(t *testing.T) {
	store := newTestStore(t)
	code, err := store.CreateCode(3, time.Now().UTC().Add(-time.Hour), time.Minute, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartExpiryJob(ctx, 10*time.Millisecond, store, zerolog.Nop())

	require.Eventually(t, func() bool {
		return !store.active(code.Code)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)
	store.Log("login", 1, "siti", t0)
	store.Log("login", 2, "budi", t0.Add(time.Minute))

	logs := store.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "budi", logs[0].Detail)
	assert.Len(t, logs[0].ID, 36)
}
