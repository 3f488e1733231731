package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/grocery-store/internal/port"
)

const idempotencyKeyTTL = 24 * time.Hour

// releaseScript deletes the key only while it still carries our token, so a
// late release never frees a claim that expired and was taken by someone else.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: idempotencyKeyTTL}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "claim idempotency key")
	}
	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}
