package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
)

// Engine runs the identity and session lifecycle. Build one with [New] and
// [Builder.Build]; the zero value returns [ErrEngineNotReady] everywhere.
type Engine struct {
	config        Config
	repo          IdentityRepository
	hasher        CredentialHasher
	mailer        MailSender
	logger        *slog.Logger
	tokens        *stores.TokenStore
	issueLimiter  *limiters.TokenIssueLimiter
	signInLimiter *limiters.SignInLimiter
	sessions      *jwt.Manager
	audit         *internalaudit.Dispatcher
	metrics       *Metrics
	clock         func() time.Time
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) warn(msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}

func (e *Engine) ready() bool {
	return e != nil && e.repo != nil && e.hasher != nil && e.tokens != nil && e.sessions != nil
}

// repoErr keeps the repository contract errors and context errors intact and
// classifies anything else as a store outage.
func repoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrEmailInUse),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func toFlowUser(u User) internalflows.UserRecord {
	return internalflows.UserRecord{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		CredentialHash:   u.CredentialHash,
		Role:             string(u.Role),
		EmailVerified:    u.EmailVerified(),
		TwoFactorEnabled: u.IsTwoFactorEnabled,
	}
}

func (e *Engine) getFlowUserByEmail(ctx context.Context, email string) (internalflows.UserRecord, error) {
	u, err := e.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return internalflows.UserRecord{}, repoErr(err)
	}
	return toFlowUser(u), nil
}

func (e *Engine) getFlowUserByID(ctx context.Context, userID string) (internalflows.UserRecord, error) {
	u, err := e.repo.GetUserByID(ctx, userID)
	if err != nil {
		return internalflows.UserRecord{}, repoErr(err)
	}
	return toFlowUser(u), nil
}

func (e *Engine) hasLinkedAccount(ctx context.Context, userID string) (bool, error) {
	_, err := e.repo.GetAccountByUserID(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, repoErr(err)
	}
}

func (e *Engine) verifyPassword(secret, hash string) (bool, error) {
	return e.hasher.Verify(secret, hash)
}

func (e *Engine) hashPassword(secret string) (string, error) {
	hash, err := e.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return hash, nil
}
