// Package lock provides a Redis-backed per-key run lock so that two
// processes do not ingest the same source at the same time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "finance-ledger:lock:"

// Connect opens a Redis client from a redis:// URL and pings it
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// RedisLocker hands out non-blocking locks that expire after ttl, so a
// crashed holder cannot block a key forever.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker on top of rdb
func NewRedisLocker(rdb redislock.RedisClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

// TryLock obtains key without waiting. ok is false when another holder has
// it. The returned release func is safe to call once.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	lk, err := l.client.Obtain(ctx, keyPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}
