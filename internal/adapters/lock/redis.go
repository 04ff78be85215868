package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "newebpay:order_lock:"

// redisLocker serializes work per key across replicas with a redsync mutex
type redisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	logger *zap.Logger
}

// NewRedsync creates a redsync instance over a go-redis client
func NewRedsync(rdb *redis.Client) *redsync.Redsync {
	pool := goredis.NewPool(rdb)
	return redsync.New(pool)
}

// NewRedis creates a distributed keyed locker. expiry bounds how long a crashed
// holder can block others and must exceed the service deadline that bounds
// every locked gateway call.
func NewRedis(rs *redsync.Redsync, expiry time.Duration, logger *zap.Logger) ports.KeyedLocker {
	return &redisLocker{rs: rs, expiry: expiry, tries: 64, logger: logger}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(
		keyPrefix+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(100*time.Millisecond),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return func() {
		// a cancelled request context must not strand the lock until expiry
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			l.logger.Warn("Failed to release order lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}, nil
}
