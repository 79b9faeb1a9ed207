package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockNotAcquired is returned when another holder kept the lock for the
// whole wait window.
var ErrLockNotAcquired = errors.New("repository: lock not acquired")

const lockPollInterval = 100 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// LockRepository serialises work on one key across processes using Redis.
// A nil client turns every lock into a no-op.
type LockRepository struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewLockRepository constructs a lock repository.
func NewLockRepository(client *redis.Client, logger *zap.Logger) *LockRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockRepository{client: client, logger: logger, prefix: "enrollment:lock:"}
}

// Enabled reports whether locks are backed by Redis.
func (r *LockRepository) Enabled() bool {
	return r != nil && r.client != nil
}

// Ping checks Redis reachability; a disabled lock is always healthy.
func (r *LockRepository) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Acquire takes the lock for key, retrying until wait elapses. The lock
// expires after ttl if never released.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (ReleaseFunc, error) {
	if !r.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	fullKey := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", fullKey, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, r.client, []string{fullKey}, token).Int()
		if err != nil {
			return fmt.Errorf("redis release %s: %w", fullKey, err)
		}
		if deleted == 0 {
			r.logger.Warn("lock expired before release", zap.String("key", fullKey))
		}
		return nil
	}, nil
}
