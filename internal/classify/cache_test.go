package classify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lumina/internal/db"
)

func TestMemoryCache_TakeConsumes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	res := New(DefaultConfig(), nil).ClassifyWithCount(0, "Turn on the porch lights at 7pm")

	require.NoError(t, c.Put(ctx, "user-1", res))

	got, ok, err := c.Take(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res, *got)

	_, ok, err = c.Take(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 18, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "k", Result{Complexity: Simple}))
	now = now.Add(2 * time.Minute)

	_, ok, err := c.Take(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func setupRedisCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCache(client, "lumina:classification:", ttl)
}

func TestRedisCache_TakeConsumes(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedisCache(t, 10*time.Minute)
	res := New(DefaultConfig(), nil).ClassifyWithCount(3, "Halloween colors every night through October")

	require.NoError(t, c.Put(ctx, "user-1", res))
	require.True(t, mr.Exists("lumina:classification:user-1"))

	got, ok, err := c.Take(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Complexity, got.Complexity)
	require.Equal(t, res.Signals, got.Signals)
	require.Equal(t, res.Entities, got.Entities)
	require.Equal(t, res.Scores, got.Scores)
	require.False(t, mr.Exists("lumina:classification:user-1"))

	_, ok, err = c.Take(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedisCache(t, time.Minute)

	require.NoError(t, c.Put(ctx, "user-1", Result{Complexity: Complex}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Take(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func setupSQLiteCache(t *testing.T, ttl time.Duration) *SQLiteCache {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return NewSQLiteCache(d.DB, ttl)
}

func TestSQLiteCache_TakeConsumes(t *testing.T) {
	ctx := context.Background()
	c := setupSQLiteCache(t, 0)
	res := New(DefaultConfig(), nil).ClassifyWithCount(1, "Dim the lights to 40% at sunset")

	require.NoError(t, c.Put(ctx, "latest", Result{Complexity: Simple}))
	require.NoError(t, c.Put(ctx, "latest", res))

	got, ok, err := c.Take(ctx, "latest")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Complexity, got.Complexity)
	require.Equal(t, res.Entities, got.Entities)

	_, ok, err = c.Take(ctx, "latest")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 18, 0, 0, 0, time.UTC)
	c := setupSQLiteCache(t, time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "a", Result{Complexity: Simple}))
	require.NoError(t, c.Put(ctx, "b", Result{Complexity: Moderate}))
	now = now.Add(2 * time.Minute)

	deleted, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	_, ok, err := c.Take(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}
