package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "deskbus:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", map[string]any{"n": 1, "s": "x"}, 0))
	assert.True(t, mr.Exists("deskbus:k"))

	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": float64(1), "s": "x"}, v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, store.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_CorruptValue(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedis(t)

	require.NoError(t, mr.Set("deskbus:bad", "{not json"))
	_, ok, err := store.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop())
	assert.Error(t, err)
}
