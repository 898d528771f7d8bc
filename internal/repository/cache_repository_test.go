package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCache_JSONRoundTrip(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	routes := map[string]string{"hupu": "/hupu", "baidu": "/baidu"}
	require.NoError(t, cache.SetJSON(ctx, KeyRouteTable, routes, time.Minute))

	var got map[string]string
	found, err := cache.GetJSON(ctx, KeyRouteTable, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, routes, got)

	mr.FastForward(2 * time.Minute)

	found, err = cache.GetJSON(ctx, KeyRouteTable, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_ExistsAndDelete(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	exists, err := cache.Exists(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, cache.SetJSON(ctx, KeyRouteTable, map[string]string{"a": "/a"}, time.Minute))
	exists, err = cache.Exists(ctx, KeyRouteTable)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, KeyRouteTable))
	exists, err = cache.Exists(ctx, KeyRouteTable)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCache_LockTokensAreUnique(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	first, err := cache.AcquireLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	second, err := cache.AcquireLock(ctx, "lock:b", time.Minute)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.Len(t, first, 36)
}

func TestCache_Lock(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	token, err := cache.AcquireLock(ctx, KeyIngestLock, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := cache.AcquireLock(ctx, KeyIngestLock, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, cache.ReleaseLock(ctx, KeyIngestLock, "someone-else"))
	assert.True(t, mr.Exists(KeyIngestLock))

	require.NoError(t, cache.ReleaseLock(ctx, KeyIngestLock, token))
	assert.False(t, mr.Exists(KeyIngestLock))

	third, err := cache.AcquireLock(ctx, KeyIngestLock, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}
