package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NOTE: These are integration tests that require a running Redis.
// export REDIS_ADDR="localhost:6379"

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("Could not connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// newReplica builds an independent locker the way a second server process would
func newReplica(rdb *redis.Client, expiry time.Duration) ports.KeyedLocker {
	return NewRedis(NewRedsync(rdb), expiry, zap.NewNop())
}

func uniqueKey() string {
	return "TEST" + uuid.NewString()
}

func TestRedisLocker_SerializesAcrossReplicas(t *testing.T) {
	rdb := setupRedis(t)
	replicas := []ports.KeyedLocker{newReplica(rdb, 10*time.Second), newReplica(rdb, 10*time.Second)}
	key := uniqueKey()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(l ports.KeyedLocker) {
			defer wg.Done()
			unlock, err := l.Lock(ctx, key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}(replicas[i%2])
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestRedisLocker_HeldLockBlocksUntilContextEnds(t *testing.T) {
	rdb := setupRedis(t)
	key := uniqueKey()

	unlock, err := newReplica(rdb, 10*time.Second).Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = newReplica(rdb, 10*time.Second).Lock(ctx, key)
	assert.Error(t, err)
}

func TestRedisLocker_UnlockReleasesForOtherReplica(t *testing.T) {
	rdb := setupRedis(t)
	key := uniqueKey()

	unlock, err := newReplica(rdb, 10*time.Second).Lock(context.Background(), key)
	require.NoError(t, err)
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := newReplica(rdb, 10*time.Second).Lock(ctx, key)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_DifferentKeysDoNotContend(t *testing.T) {
	rdb := setupRedis(t)
	l := newReplica(rdb, 10*time.Second)

	unlockA, err := l.Lock(context.Background(), uniqueKey())
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, uniqueKey())
	require.NoError(t, err)
	unlockB()
}

func TestRedisLocker_ExpiryFreesCrashedHolder(t *testing.T) {
	rdb := setupRedis(t)
	key := uniqueKey()

	// never released, as if the holder crashed
	_, err := newReplica(rdb, 500*time.Millisecond).Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	unlock, err := newReplica(rdb, 10*time.Second).Lock(ctx, key)
	require.NoError(t, err)
	unlock()
}
