package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/session"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "cpl_auth")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, store.Set(ctx, "cpl_auth", []byte(`{"email":"asha@pstu.ac.bd"}`)))
	got, err := store.Get(ctx, "cpl_auth")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"asha@pstu.ac.bd"}`, string(got))

	require.NoError(t, store.Set(ctx, "cpl_auth", []byte(`{"email":"rafi@pstu.ac.bd"}`)))
	got, err = store.Get(ctx, "cpl_auth")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"rafi@pstu.ac.bd"}`, string(got))

	require.NoError(t, store.Delete(ctx, "cpl_auth"))
	_, err = store.Get(ctx, "cpl_auth")
	assert.ErrorIs(t, err, session.ErrNotFound)

	// deleting twice is fine
	require.NoError(t, store.Delete(ctx, "cpl_auth"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, session.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestPrefixed_IsolatesKeys(t *testing.T) {
	ctx := context.Background()
	backend := session.NewMemoryStore()
	a := session.Prefixed(backend, "browser-a")
	b := session.Prefixed(backend, "browser-b")

	require.NoError(t, a.Set(ctx, "cpl_auth", []byte("A")))
	_, err := b.Get(ctx, "cpl_auth")
	assert.ErrorIs(t, err, session.ErrNotFound)

	got, err := backend.Get(ctx, "browser-a:cpl_auth")
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	exerciseStore(t, b)
	assert.Equal(t, 1, backend.Len())
}

func TestSQLiteStore(t *testing.T) {
	store, err := session.OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := session.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "cpl_auth", []byte("snapshot")))
	require.NoError(t, store.Close())

	reopened, err := session.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "cpl_auth")
	require.NoError(t, err)
	assert.Equal(t, "snapshot", string(got))
}

// exercisePrune checks that only values written before the cutoff go.
func exercisePrune(t *testing.T, store interface {
	session.Store
	session.Pruner
}) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "web:a:cpl_auth", []byte("a")))
	require.NoError(t, store.Set(ctx, "web:b:cpl_auth", []byte("b")))

	n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Get(ctx, "web:a:cpl_auth")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore_Prune(t *testing.T) {
	store := session.NewMemoryStore()
	exercisePrune(t, store)
	assert.Zero(t, store.Len())
}

func TestSQLiteStore_Prune(t *testing.T) {
	store, err := session.OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	exercisePrune(t, store)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := session.OpenSQLite("  ")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis store test")
	}

	store, err := session.NewRedisStore(session.RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, session.Prefixed(store, "cpl-test-"+time.Now().Format("150405.000")))
}
