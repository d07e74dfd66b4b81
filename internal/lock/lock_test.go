package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()
	defer m.Stop()

	key := Keys.ReclaimSweep()

	ok, err := m.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	held, err := m.IsHeld(ctx, key)
	require.NoError(t, err)
	require.True(t, held)

	released, err := m.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	released, err = m.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()
	defer m.Stop()

	ok, err := m.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	held, err := m.IsHeld(ctx, "k")
	require.NoError(t, err)
	require.False(t, held)

	extended, err := m.Extend(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, extended)

	ok, err = m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLocker_ExclusiveUnderContention(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()
	defer m.Stop()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Acquire(ctx, "contended", time.Minute)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), winners.Load())
}

func TestMemoryLocker_AcquireWithRetry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()
	defer m.Stop()

	ok, err := m.Acquire(ctx, "k", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.AcquireWithRetry(ctx, "k", time.Minute, 1, time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.AcquireWithRetry(ctx, "k", time.Minute, 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	m := NewMemoryLocker()
	defer m.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLock_Wrapper(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLocker()
	defer m.Stop()

	l := NewLock(m, "wrapped")
	require.Equal(t, "wrapped", l.Key())
	require.NoError(t, l.Release(ctx))

	ok, err := l.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, l.IsHeld())

	require.NoError(t, l.Extend(ctx, time.Minute))
	require.True(t, l.IsHeld())

	require.NoError(t, l.Release(ctx))
	require.False(t, l.IsHeld())

	held, err := m.IsHeld(ctx, "wrapped")
	require.NoError(t, err)
	require.False(t, held)
}

func TestNoOpLocker(t *testing.T) {
	ctx := context.Background()
	n := NewNoOpLocker()

	ok, err := n.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = n.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("SHOWCASE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOWCASE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "lock:test:" + uuid.NewString()
	a := NewRedisLocker(client)
	b := NewRedisLocker(client)

	ok, err := a.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// b never acquired it, so it cannot release it.
	released, err := b.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released)

	extended, err := a.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, extended)

	released, err = a.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	held, err := b.IsHeld(ctx, key)
	require.NoError(t, err)
	require.False(t, held)
}
