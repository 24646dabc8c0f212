package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const fenceKeyTTL = 24 * time.Hour

// RedisAdapter fences duplicate submissions across process instances via
// SETNX. Keys expire after a day; a resubmission of the same request ID
// within that window is rejected as a duplicate.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, fenceKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
