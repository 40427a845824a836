package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "presence:online"

// RedisPresence mirrors connected principal keys into a sorted set scored by
// last-seen unix time, shared by every server instance.
type RedisPresence struct {
	client *redis.Client
	window time.Duration
}

// NewRedisPresence keeps entries visible for window after their last touch.
func NewRedisPresence(client *redis.Client, window time.Duration) *RedisPresence {
	return &RedisPresence{client: client, window: window}
}

func (r *RedisPresence) Touch(ctx context.Context, keys []string, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]redis.Z, len(keys))
	for i, k := range keys {
		members[i] = redis.Z{Score: float64(at.Unix()), Member: k}
	}
	return r.client.ZAdd(ctx, presenceKey, members...).Err()
}

func (r *RedisPresence) Remove(ctx context.Context, key string) error {
	return r.client.ZRem(ctx, presenceKey, key).Err()
}

// Online returns keys touched within the window and drops older ones.
func (r *RedisPresence) Online(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := strconv.FormatInt(now.Add(-r.window).Unix(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, presenceKey, "-inf", "("+cutoff)
	live := pipe.ZRangeByScore(ctx, presenceKey, &redis.ZRangeBy{Min: cutoff, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return live.Val(), nil
}
