package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/mail"
)

// IssueToken replaces any live token of purpose for email with a new one and
// mails it. The receipt never carries the token value. When email belongs to
// a user the token records that user as its owner.
func (e *Engine) IssueToken(ctx context.Context, email string, purpose TokenPurpose) (*TokenReceipt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !purpose.Valid() {
		return nil, ErrInvalidInput
	}

	email = internalflows.NormalizeEmail(email)
	var userID string
	user, err := e.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		userID = user.ID
	case !errors.Is(err, ErrNotFound):
		return nil, repoErr(err)
	}

	issued, err := e.issueToken(ctx, string(purpose), email, userID)
	if err != nil {
		return nil, err
	}
	return toTokenReceipt(issued), nil
}

// ConsumeToken validates and deletes a token. Link-delivered purposes accept
// an empty email and resolve it from the value. Using the same value twice
// always fails the second time with [ErrTokenNotFound].
func (e *Engine) ConsumeToken(ctx context.Context, email, value string, purpose TokenPurpose) (*ConsumeResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !purpose.Valid() {
		return nil, ErrInvalidInput
	}

	consumed, err := e.consumeToken(ctx, string(purpose), email, value)
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{
		Email:     consumed.Email,
		Purpose:   purpose,
		UserID:    consumed.UserID,
		ExpiresAt: consumed.ExpiresAt,
	}, nil
}

func (e *Engine) issueToken(ctx context.Context, purpose, email, userID string) (*internalflows.IssueResult, error) {
	return internalflows.RunIssueToken(ctx, purpose, email, userID, e.tokenFlowDeps())
}

func (e *Engine) consumeToken(ctx context.Context, purpose, email, value string) (*internalflows.ConsumedToken, error) {
	return internalflows.RunConsumeToken(ctx, purpose, email, value, e.tokenFlowDeps())
}

func (e *Engine) restoreToken(ctx context.Context, token *internalflows.ConsumedToken, value string) (bool, error) {
	return internalflows.RunRestoreToken(ctx, token, value, e.tokenFlowDeps())
}

func (e *Engine) tokenPolicy(purpose string) (internalflows.TokenPolicy, bool) {
	switch TokenPurpose(purpose) {
	case PurposeEmailVerify:
		return internalflows.TokenPolicy{TTL: e.config.Tokens.EmailVerifyTTL, Indexed: true}, true
	case PurposePasswordReset:
		return internalflows.TokenPolicy{TTL: e.config.Tokens.PasswordResetTTL, Indexed: true}, true
	case PurposeTwoFactor:
		// Codes are short and guessable, so wrong guesses are counted.
		return internalflows.TokenPolicy{
			TTL:           e.config.TwoFactor.CodeTTL,
			CountMismatch: true,
			MaxAttempts:   e.config.TwoFactor.MaxAttempts,
		}, true
	default:
		return internalflows.TokenPolicy{}, false
	}
}

func (e *Engine) generateTokenValue(purpose string) (string, error) {
	if TokenPurpose(purpose) == PurposeTwoFactor {
		return internal.NewOTP(e.config.TwoFactor.CodeDigits)
	}
	return internal.NewLinkToken()
}

func (e *Engine) tokenFlowDeps() internalflows.TokenDeps {
	deps := internalflows.TokenDeps{
		Now:           e.now,
		Policy:        e.tokenPolicy,
		GenerateValue: e.generateTokenValue,
		HashValue:     internal.HashSecret,
		EncodeHash:    internal.EncodeHash,
		AllowIssue: func(ctx context.Context, purpose, email string) error {
			return mapLimiterError(e.issueLimiter.Allow(ctx, purpose, email))
		},
		SaveToken: func(ctx context.Context, record internalflows.TokenStoreRecord, encodedHash string, indexed bool, now time.Time) error {
			return mapTokenStoreError(e.tokens.Issue(ctx, &stores.TokenRecord{
				Purpose:    record.Purpose,
				Email:      record.Email,
				UserID:     record.UserID,
				SecretHash: record.SecretHash,
				ExpiresAt:  record.ExpiresAt,
			}, encodedHash, indexed, now))
		},
		ResolveEmail: func(ctx context.Context, purpose, encodedHash string) (string, error) {
			email, err := e.tokens.ResolveEmail(ctx, purpose, encodedHash)
			return email, mapTokenStoreError(err)
		},
		ConsumeToken: func(ctx context.Context, purpose, email string, hash [32]byte, encodedHash string, policy internalflows.TokenPolicy, now time.Time) (internalflows.TokenStoreRecord, error) {
			rec, err := e.tokens.Consume(ctx, purpose, email, hash, encodedHash, policy.Indexed, policy.CountMismatch, policy.MaxAttempts, now)
			if err != nil {
				return internalflows.TokenStoreRecord{}, mapTokenStoreError(err)
			}
			return internalflows.TokenStoreRecord{
				Purpose:    rec.Purpose,
				Email:      rec.Email,
				UserID:     rec.UserID,
				SecretHash: rec.SecretHash,
				ExpiresAt:  rec.ExpiresAt,
			}, nil
		},
		RestoreToken: func(ctx context.Context, record internalflows.TokenStoreRecord, encodedHash string, indexed bool, now time.Time) (bool, error) {
			restored, err := e.tokens.Restore(ctx, &stores.TokenRecord{
				Purpose:    record.Purpose,
				Email:      record.Email,
				UserID:     record.UserID,
				SecretHash: record.SecretHash,
				ExpiresAt:  record.ExpiresAt,
			}, encodedHash, indexed, now)
			return restored, mapTokenStoreError(err)
		},
		Notify:    e.notify,
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: internalflows.TokenMetrics{
			TokenIssued:      int(MetricTokenIssued),
			TokenConsumed:    int(MetricTokenConsumed),
			TokenExpired:     int(MetricTokenExpired),
			TokenRejected:    int(MetricTokenRejected),
			TokenRateLimited: int(MetricTokenRateLimited),
			MailFailure:      int(MetricMailFailure),
		},
		Events: internalflows.TokenEvents{
			TokenIssued:   auditEventTokenIssued,
			TokenConsumed: auditEventTokenConsumed,
		},
		Errors: internalflows.TokenErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidInput:          ErrInvalidInput,
			TokenNotFound:         ErrTokenNotFound,
			TokenExpired:          ErrTokenExpired,
			TokenAttemptsExceeded: ErrTokenAttemptsExceeded,
			TokenRateLimited:      ErrTokenRateLimited,
			DeliveryFailed:        ErrDeliveryFailed,
		},
	}
	if e.tokens == nil {
		deps.SaveToken = nil
		deps.ConsumeToken = nil
		deps.RestoreToken = nil
	}
	return deps
}

// notify renders the message for purpose and hands it to the mail sender.
func (e *Engine) notify(ctx context.Context, purpose, email, value string, _ time.Time) error {
	if e.mailer == nil {
		return nil
	}

	var (
		msg mail.Message
		err error
	)
	switch TokenPurpose(purpose) {
	case PurposeEmailVerify:
		msg, err = mail.VerificationEmail(mail.Link(e.config.Mail.AppURL, e.config.Mail.VerificationPath, value))
	case PurposePasswordReset:
		msg, err = mail.PasswordResetEmail(mail.Link(e.config.Mail.AppURL, e.config.Mail.ResetPath, value))
	case PurposeTwoFactor:
		msg, err = mail.TwoFactorEmail(value)
	default:
		return fmt.Errorf("no template for purpose %q", purpose)
	}
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, email, msg.Subject, msg.HTML)
}

func mapTokenStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrTokenNotFound), errors.Is(err, stores.ErrTokenSecretMismatch):
		return ErrTokenNotFound
	case errors.Is(err, stores.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, stores.ErrTokenAttemptsExceeded):
		return ErrTokenAttemptsExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrTokenIssueRateLimited):
		return ErrTokenRateLimited
	case errors.Is(err, limiters.ErrSignInLocked):
		return ErrSignInRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func toTokenReceipt(r *internalflows.IssueResult) *TokenReceipt {
	if r == nil {
		return nil
	}
	return &TokenReceipt{
		Email:       r.Email,
		Purpose:     TokenPurpose(r.Purpose),
		ExpiresAt:   r.ExpiresAt,
		DeliveryErr: r.DeliveryErr,
	}
}
