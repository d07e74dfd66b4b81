package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/repository"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("SHOWCASE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOWCASE_TEST_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, "test:"+uuid.NewString()+":")
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.DeleteMulti(ctx, "k", "other"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCache_Unavailable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewCache(client, "")
	_, err := c.Get(context.Background(), "k")
	require.ErrorIs(t, err, repository.ErrCacheUnavailable)
}
