package flows

import (
	"context"
	"errors"
	"time"
)

// TokenStoreRecord is the flow-local view of a persisted token.
type TokenStoreRecord struct {
	Purpose    string
	Email      string
	UserID     string
	SecretHash [32]byte
	ExpiresAt  time.Time
}

// TokenMetrics carries metric IDs needed by token flows.
type TokenMetrics struct {
	TokenIssued      int
	TokenConsumed    int
	TokenExpired     int
	TokenRejected    int
	TokenRateLimited int
	MailFailure      int
}

// TokenEvents carries audit event names used by token flows.
type TokenEvents struct {
	TokenIssued   string
	TokenConsumed string
}

// TokenErrors carries host-level sentinel errors used by token flows.
type TokenErrors struct {
	EngineNotReady        error
	InvalidInput          error
	TokenNotFound         error
	TokenExpired          error
	TokenAttemptsExceeded error
	TokenRateLimited      error
	DeliveryFailed        error
}

// TokenPolicy is the per-purpose behavior of the token store.
type TokenPolicy struct {
	TTL time.Duration
	// Indexed purposes can be consumed by value alone.
	Indexed bool
	// CountMismatch makes a wrong value count against MaxAttempts.
	CountMismatch bool
	MaxAttempts   int
}

// TokenDeps captures token issue/consume dependencies.
type TokenDeps struct {
	Now    func() time.Time
	Policy func(purpose string) (TokenPolicy, bool)

	GenerateValue func(purpose string) (string, error)
	HashValue     func(string) [32]byte
	EncodeHash    func([32]byte) string

	AllowIssue   func(ctx context.Context, purpose, email string) error
	SaveToken    func(ctx context.Context, record TokenStoreRecord, encodedHash string, indexed bool, now time.Time) error
	ResolveEmail func(ctx context.Context, purpose, encodedHash string) (string, error)
	ConsumeToken func(ctx context.Context, purpose, email string, hash [32]byte, encodedHash string, policy TokenPolicy, now time.Time) (TokenStoreRecord, error)
	RestoreToken func(ctx context.Context, record TokenStoreRecord, encodedHash string, indexed bool, now time.Time) (bool, error)

	// Notify renders and sends the message carrying value.
	Notify func(ctx context.Context, purpose, email, value string, expiresAt time.Time) error

	MetricInc func(int)
	EmitAudit auditFunc
	Warn      func(string, ...any)

	Metrics TokenMetrics
	Events  TokenEvents
	Errors  TokenErrors
}

func normalizeTokenDeps(deps *TokenDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
}

// RunIssueToken replaces any live token of purpose for email with a fresh one
// and dispatches its notification. A notification failure does not undo the
// issue; it is reported through IssueResult.DeliveryErr.
func RunIssueToken(ctx context.Context, purpose, email, userID string, deps TokenDeps) (*IssueResult, error) {
	normalizeTokenDeps(&deps)
	if deps.Policy == nil || deps.GenerateValue == nil || deps.HashValue == nil || deps.EncodeHash == nil || deps.SaveToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	policy, ok := deps.Policy(purpose)
	if !ok || email == "" || policy.TTL <= 0 {
		return nil, deps.Errors.InvalidInput
	}

	if deps.AllowIssue != nil {
		if err := deps.AllowIssue(ctx, purpose, email); err != nil {
			if errors.Is(err, deps.Errors.TokenRateLimited) {
				deps.MetricInc(deps.Metrics.TokenRateLimited)
			}
			deps.EmitAudit(ctx, deps.Events.TokenIssued, false, userID, email, err, func() map[string]string {
				return map[string]string{"purpose": purpose}
			})
			return nil, err
		}
	}

	value, err := deps.GenerateValue(purpose)
	if err != nil {
		return nil, err
	}
	hash := deps.HashValue(value)
	now := deps.Now()
	record := TokenStoreRecord{
		Purpose:    purpose,
		Email:      email,
		UserID:     userID,
		SecretHash: hash,
		ExpiresAt:  now.Add(policy.TTL),
	}

	if err := deps.SaveToken(ctx, record, deps.EncodeHash(hash), policy.Indexed, now); err != nil {
		deps.EmitAudit(ctx, deps.Events.TokenIssued, false, userID, email, err, func() map[string]string {
			return map[string]string{"purpose": purpose}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.TokenIssued)
	result := &IssueResult{
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: record.ExpiresAt,
	}

	if deps.Notify != nil {
		if err := deps.Notify(ctx, purpose, email, value, record.ExpiresAt); err != nil {
			deps.MetricInc(deps.Metrics.MailFailure)
			deps.Warn("goidentity: token notification failed", "purpose", purpose, "email", email, "error", err)
			result.DeliveryErr = errors.Join(deps.Errors.DeliveryFailed, err)
		}
	}

	deps.EmitAudit(ctx, deps.Events.TokenIssued, true, userID, email, nil, func() map[string]string {
		meta := map[string]string{"purpose": purpose}
		if result.DeliveryErr != nil {
			meta["delivery"] = "failed"
		}
		return meta
	})
	return result, nil
}

// RunConsumeToken validates and deletes a token. For indexed purposes email
// may be empty and is resolved from the value. A second consume of the same
// value always fails with TokenNotFound.
func RunConsumeToken(ctx context.Context, purpose, email, value string, deps TokenDeps) (*ConsumedToken, error) {
	normalizeTokenDeps(&deps)
	if deps.Policy == nil || deps.HashValue == nil || deps.EncodeHash == nil || deps.ConsumeToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	policy, ok := deps.Policy(purpose)
	if !ok {
		return nil, deps.Errors.InvalidInput
	}
	if value == "" {
		deps.MetricInc(deps.Metrics.TokenRejected)
		return nil, deps.Errors.TokenNotFound
	}

	hash := deps.HashValue(value)
	encoded := deps.EncodeHash(hash)
	email = NormalizeEmail(email)

	if email == "" {
		if !policy.Indexed || deps.ResolveEmail == nil {
			return nil, deps.Errors.InvalidInput
		}
		resolved, err := deps.ResolveEmail(ctx, purpose, encoded)
		if err != nil {
			if errors.Is(err, deps.Errors.TokenNotFound) {
				deps.MetricInc(deps.Metrics.TokenRejected)
			}
			deps.EmitAudit(ctx, deps.Events.TokenConsumed, false, "", "", err, func() map[string]string {
				return map[string]string{"purpose": purpose, "reason": "unknown_value"}
			})
			return nil, err
		}
		email = resolved
	}

	record, err := deps.ConsumeToken(ctx, purpose, email, hash, encoded, policy, deps.Now())
	if err != nil {
		switch {
		case errors.Is(err, deps.Errors.TokenExpired):
			deps.MetricInc(deps.Metrics.TokenExpired)
		case errors.Is(err, deps.Errors.TokenNotFound), errors.Is(err, deps.Errors.TokenAttemptsExceeded):
			deps.MetricInc(deps.Metrics.TokenRejected)
		}
		deps.EmitAudit(ctx, deps.Events.TokenConsumed, false, "", email, err, func() map[string]string {
			return map[string]string{"purpose": purpose}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.TokenConsumed)
	deps.EmitAudit(ctx, deps.Events.TokenConsumed, true, record.UserID, email, nil, func() map[string]string {
		return map[string]string{"purpose": purpose}
	})
	return &ConsumedToken{
		Email:     email,
		Purpose:   purpose,
		UserID:    record.UserID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// RunRestoreToken puts a consumed token back after the effect it gated
// failed, so the same value can be retried. A token issued since the
// consume takes precedence and an expired one stays gone.
func RunRestoreToken(ctx context.Context, token *ConsumedToken, value string, deps TokenDeps) (bool, error) {
	normalizeTokenDeps(&deps)
	if token == nil || value == "" {
		return false, nil
	}
	if deps.Policy == nil || deps.HashValue == nil || deps.EncodeHash == nil || deps.RestoreToken == nil {
		return false, deps.Errors.EngineNotReady
	}
	policy, ok := deps.Policy(token.Purpose)
	if !ok {
		return false, deps.Errors.InvalidInput
	}

	hash := deps.HashValue(value)
	restored, err := deps.RestoreToken(ctx, TokenStoreRecord{
		Purpose:    token.Purpose,
		Email:      token.Email,
		UserID:     token.UserID,
		SecretHash: hash,
		ExpiresAt:  token.ExpiresAt,
	}, deps.EncodeHash(hash), policy.Indexed, deps.Now())
	if err != nil {
		return false, err
	}
	if restored {
		deps.EmitAudit(ctx, deps.Events.TokenConsumed, false, token.UserID, token.Email, nil, func() map[string]string {
			return map[string]string{"purpose": token.Purpose, "restored": "true"}
		})
	}
	return restored, nil
}
