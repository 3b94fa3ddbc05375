package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"villaops/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	s := miniredis.RunT(t)

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()
	require.NoError(t, Ping(context.Background(), client))

	repo := NewRedisCache(client, "villaops:")
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "calendar:a", []byte(`[1]`), time.Minute))

		got, ok, err := repo.Get(ctx, "calendar:a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `[1]`, string(got))
		assert.True(t, s.Exists("villaops:calendar:a"))
	})

	t.Run("Miss", func(t *testing.T) {
		got, ok, err := repo.Get(ctx, "calendar:missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "short", []byte("x"), time.Second))
		s.FastForward(2 * time.Second)
		_, ok, err := repo.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeletePrefix", func(t *testing.T) {
		for i := 0; i < 150; i++ {
			require.NoError(t, repo.Set(ctx, fmt.Sprintf("calendar:bulk:%d", i), []byte("v"), 0))
		}
		require.NoError(t, repo.Set(ctx, "other:keep", []byte("v"), 0))

		require.NoError(t, repo.DeletePrefix(ctx, "calendar:"))

		keys := s.Keys()
		assert.Equal(t, []string{"villaops:other:keep"}, keys)
	})

	t.Run("RateLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "webhook:airbnb", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "webhook:airbnb", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(2 * time.Minute)
		allowed, err = repo.CheckRateLimit(ctx, "webhook:airbnb", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
		defer down.Close()
		broken := NewRedisCache(down, "")
		_, _, err := broken.Get(ctx, "k")
		assert.Error(t, err)
	})
}

func TestRedisCache_NilClient(t *testing.T) {
	repo := NewRedisCache(nil, "")
	ctx := context.Background()

	_, _, err := repo.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, repo.Set(ctx, "k", nil, 0))
	assert.Error(t, repo.DeletePrefix(ctx, "k"))
	_, err = repo.CheckRateLimit(ctx, "k", 1, time.Second)
	assert.Error(t, err)
	assert.NoError(t, Close(nil))
}
