// SPDX-License-Identifier: MIT

package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "synos:bridge:seen:"

// Redis is a shared guard for deployments where several bridge instances (or
// a restarting one) must agree on which event IDs were already applied.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects a guard to the given address. The TTL bounds how long an
// ID is remembered.
func NewRedis(addr string, ttl time.Duration) (*Redis, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect dedupe redis %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Seen(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe seen %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Redis) Remember(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+id, "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("dedupe remember %s: %w", id, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
