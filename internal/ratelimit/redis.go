package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounter shares windows between every instance using the same Redis.
// Each window is one key that expires a second after the window ends.
type redisCounter struct {
	client redis.UniversalClient
	prefix string
}

func (c *redisCounter) bucket(key string, start time.Time) string {
	name := key + ":" + strconv.FormatInt(start.Unix(), 10)
	if c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

func (c *redisCounter) incr(ctx context.Context, key string, start time.Time, window time.Duration) (int, error) {
	bucket := c.bucket(key, start)
	var hits *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, bucket)
		pipe.ExpireAt(ctx, bucket, start.Add(window+time.Second))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit redis: %w", err)
	}
	return int(hits.Val()), nil
}
