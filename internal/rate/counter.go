package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is a namespaced fixed-window counter in Redis.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCounter returns a Counter whose keys are all prefixed with prefix + ":".
func NewCounter(redisClient redis.UniversalClient, prefix string) *Counter {
	return &Counter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (c *Counter) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Incr counts one event in the window identified by parts and returns the
// count including this event.
func (c *Counter) Incr(ctx context.Context, window time.Duration, parts ...string) (int64, error) {
	key := c.key(parts...)
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := c.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Allow counts one event and returns ErrRateLimited once the window holds
// more than max events.
func (c *Counter) Allow(ctx context.Context, max int, window time.Duration, parts ...string) error {
	count, err := c.Incr(ctx, window, parts...)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

// Count returns the current count without modifying it. Missing keys count as
// zero.
func (c *Counter) Count(ctx context.Context, parts ...string) (int64, error) {
	count, err := c.redis.Get(ctx, c.key(parts...)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset deletes the window identified by parts.
func (c *Counter) Reset(ctx context.Context, parts ...string) error {
	if err := c.redis.Del(ctx, c.key(parts...)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
