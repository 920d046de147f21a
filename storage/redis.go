package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// tell them apart from a missing key.
var ErrRedisUnavailable = errors.New("storage: redis unavailable")

// Redis is a Store backed by a Redis key space. It exists for fleets of
// headless workers that share one authenticated session: every worker points
// at the same prefix and observes the same tokens and consent map.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing Redis client. All keys are namespaced under
// prefix ("ak" when empty).
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "ak"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return value, nil
}

// Set implements Store. Values persist until deleted; session expiry is the
// backend's verdict, not a storage TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete implements Store. Deleting an absent key is a no-op.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
