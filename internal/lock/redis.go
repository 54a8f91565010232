package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLock is a SET NX PX lock shared by every instance pointing at the
// same Redis. Release only deletes the key while it still holds our token.
type RedisLock struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	token  func() string
}

func NewRedisLock(client redis.Cmdable, ttl, wait time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		prefix: "ledger:lock:",
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		token:  uuid.NewString,
	}
}

func (l *RedisLock) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	redisKey := l.prefix + key
	token := l.token()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("Lock: %s: %w: %w", key, domain.ErrAccountBusy, ctx.Err())
			}
			return nil, fmt.Errorf("Lock: %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("Lock: %s: %w: %w", key, domain.ErrAccountBusy, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLock) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
		slog.Warn("failed to release redis lock", "key", redisKey, "error", err)
	}
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewRedisClient: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}
	return client, nil
}
