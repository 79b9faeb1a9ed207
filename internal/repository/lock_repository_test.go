package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepositoryDisabledIsNoop(t *testing.T) {
	repo := NewLockRepository(nil, nil)
	assert.False(t, repo.Enabled())
	require.NoError(t, repo.Ping(context.Background()))

	release, err := repo.Acquire(context.Background(), "alice:65253579001", time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockRepositoryExclusive(t *testing.T) {
	client := newRedisTestClient(t)
	repo := NewLockRepository(client, nil)
	ctx := context.Background()
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	release, err := repo.Acquire(ctx, key, 5*time.Second, 0)
	require.NoError(t, err)

	_, err = repo.Acquire(ctx, key, 5*time.Second, 150*time.Millisecond)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, release(ctx))

	release2, err := repo.Acquire(ctx, key, 5*time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestLockRepositoryReleaseKeepsForeignLock(t *testing.T) {
	client := newRedisTestClient(t)
	repo := NewLockRepository(client, nil)
	ctx := context.Background()
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	release, err := repo.Acquire(ctx, key, 50*time.Millisecond, 0)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	other, err := repo.Acquire(ctx, key, 5*time.Second, 0)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	exists, err := client.Exists(ctx, repo.prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
	require.NoError(t, other(ctx))
}
