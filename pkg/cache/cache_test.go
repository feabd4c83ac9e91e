package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "p", []point{{1, 2.5}}, time.Minute))
	var got []point
	require.NoError(t, mc.Get(ctx, "p", &got))
	assert.Equal(t, []point{{1, 2.5}}, got)

	require.NoError(t, mc.Set(ctx, "s", "raw", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "raw", s)

	ok, err := mc.Exists(ctx, "nope", "s")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "s"))
	assert.ErrorIs(t, mc.Get(ctx, "s", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	time.Sleep(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCacheFillsL1(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredMemorySize(10), WithLayeredMemoryTTL(time.Minute))
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", point{X: 7}, time.Hour))
	var got point
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 7, got.X)

	// served from L1 after the remote copy is gone
	require.NoError(t, remote.Delete(ctx, "k"))
	got = point{}
	require.NoError(t, lc.Get(ctx, "k", &got))
	assert.Equal(t, 7, got.X)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestRedisConfigOptions(t *testing.T) {
	cfg := defaultRedisConfig()
	WithRedisAddr("redis", 6380)(cfg)
	WithRedisAuth("secret", 2)(cfg)

	ro, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", ro.Addr)
	assert.Equal(t, 2, ro.DB)
	assert.Equal(t, "secret", ro.Password)

	WithRedisAddr("", 0)(cfg)
	_, err = cfg.options()
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "edgescan:optimize:ab", GenerateKey("edgescan", "optimize:ab"))
	assert.Equal(t, "k", GenerateKey("", "k"))
}
