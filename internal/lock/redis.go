package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock is the cross-process StageLock backed by SET NX PX. It is the
// sole mutual-exclusion primitive for a (job, stage) pair across workers.
type RedisLock struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisLock(client redis.UniversalClient, logger *slog.Logger) *RedisLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLock{client: client, logger: logger}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		l.logger.Error("lock acquire failed", "key", key, "error", err)
		return false, err
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		l.logger.Warn("lock release failed", "key", key, "error", err)
	}
}
