package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tokenvault:blacklist"

// Redis backs the blacklist with a shared store, for deployments with more
// than one instance. Same contract as Memory.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(token string) string {
	return r.prefix + ":" + token
}

func (r *Redis) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past its natural expiry, nothing to deny
		return nil
	}

	if err := r.client.Set(ctx, r.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *Redis) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return n == 1, nil
}

// Sweep is a no-op: redis evicts expired keys itself
func (r *Redis) Sweep(_ context.Context) (int, error) {
	return 0, nil
}
