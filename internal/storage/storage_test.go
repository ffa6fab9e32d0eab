package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "a", `{"score":42}`))
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `{"score":42}`, v)

	require.NoError(t, s.Set(ctx, "a", "replaced"))
	v, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "replaced", v)

	require.NoError(t, s.Remove(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Remove(ctx, "never-set"))
}

func TestMemory(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "jobmatch.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "persisted", "yes"))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), RedisConfig{Address: mr.Addr(), Prefix: "jobmatch:"})
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", "v"))
	got, err := mr.Get("jobmatch:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(context.Background(), Config{Backend: "etcd"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Backend: BackendSQLite})
	assert.Error(t, err)
}
