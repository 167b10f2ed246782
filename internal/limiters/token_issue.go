package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenIssueRateLimited = errors.New("token issue rate limited")
	ErrLimiterUnavailable    = errors.New("limiter backend unavailable")
)

// TokenIssueConfig configures [TokenIssueLimiter]. Max <= 0 disables it.
type TokenIssueConfig struct {
	Max    int
	Window time.Duration
}

// TokenIssueLimiter throttles token issuance per (purpose, email).
type TokenIssueLimiter struct {
	counter *rate.Counter
	config  TokenIssueConfig
}

func NewTokenIssueLimiter(redisClient redis.UniversalClient, prefix string, cfg TokenIssueConfig) *TokenIssueLimiter {
	return &TokenIssueLimiter{
		counter: rate.NewCounter(redisClient, prefix+":ti"),
		config:  cfg,
	}
}

// Allow records one issuance and fails once the window is full.
func (l *TokenIssueLimiter) Allow(ctx context.Context, purpose, email string) error {
	if l == nil || l.config.Max <= 0 || l.config.Window <= 0 {
		return nil
	}

	err := l.counter.Allow(ctx, l.config.Max, l.config.Window, purpose, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrTokenIssueRateLimited
	default:
		return errors.Join(ErrLimiterUnavailable, err)
	}
}
