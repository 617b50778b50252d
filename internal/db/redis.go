package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runLockKey guards batch execution across collector replicas.
const runLockKey = "collector:run-lock"

// RedisStore wraps a redis client used for the distributed run lock.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// AcquireRunLock claims the batch run lock for this process. The token
// identifies the owner so an expired holder cannot release a successor's
// lock. Returns false when another run is in flight.
func (r *RedisStore) AcquireRunLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, runLockKey, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// ReleaseRunLock releases the run lock if this process still owns it.
func (r *RedisStore) ReleaseRunLock(ctx context.Context, token string) error {
	// Compare-and-delete so a lock that expired and was re-acquired by
	// another replica is left alone.
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
        return redis.call("del", KEYS[1])
    else
        return 0
    end`
	if err := r.Client.Eval(ctx, script, []string{runLockKey}, token).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
