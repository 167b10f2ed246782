package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter is over its threshold.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures from Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
