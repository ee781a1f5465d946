package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "bid-comb:lock:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock serializes runs across processes sharing one Redis.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient connects using a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr)
	return client, nil
}

func NewRedisLock(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLock{client: client, key: LockKey(name), ttl: ttl}
}

func LockKey(name string) string {
	return lockKeyPrefix + name
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
			slog.Warn("Failed to release run lock", "key", l.key, "error", err)
		}
	}
	return release, nil
}
