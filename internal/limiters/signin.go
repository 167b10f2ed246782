package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/redis/go-redis/v9"
)

var ErrSignInLocked = errors.New("sign-in locked")

// SignInConfig configures [SignInLimiter].
type SignInConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
}

// SignInLimiter tracks failed credential sign-ins per email.
type SignInLimiter struct {
	counter *rate.Counter
	config  SignInConfig
}

func NewSignInLimiter(redisClient redis.UniversalClient, prefix string, cfg SignInConfig) *SignInLimiter {
	return &SignInLimiter{
		counter: rate.NewCounter(redisClient, prefix+":sf"),
		config:  cfg,
	}
}

func (l *SignInLimiter) active() bool {
	return l != nil && l.config.Enabled && l.config.MaxFailures > 0
}

// Check returns ErrSignInLocked while the failure count for email is at or
// above the threshold.
func (l *SignInLimiter) Check(ctx context.Context, email string) error {
	if !l.active() || email == "" {
		return nil
	}

	count, err := l.counter.Count(ctx, email)
	if err != nil {
		return errors.Join(ErrLimiterUnavailable, err)
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrSignInLocked
	}
	return nil
}

// RecordFailure counts one failed attempt. It reports true when this failure
// reached the threshold.
func (l *SignInLimiter) RecordFailure(ctx context.Context, email string) (bool, error) {
	if !l.active() || email == "" {
		return false, nil
	}

	count, err := l.counter.Incr(ctx, l.config.Window, email)
	if err != nil {
		return false, errors.Join(ErrLimiterUnavailable, err)
	}
	return count >= int64(l.config.MaxFailures), nil
}

// Reset clears the failure count after a successful sign-in or password reset.
func (l *SignInLimiter) Reset(ctx context.Context, email string) error {
	if !l.active() || email == "" {
		return nil
	}

	if err := l.counter.Reset(ctx, email); err != nil {
		return errors.Join(ErrLimiterUnavailable, err)
	}
	return nil
}
