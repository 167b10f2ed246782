package flows

import (
	"context"
	"errors"
)

type PasswordResetMetrics struct {
	PasswordResetRequest int
	PasswordResetSuccess int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady error
	InvalidInput   error
	NotFound       error
	TokenNotFound  error
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	MinPasswordLength int

	GetUserByEmail func(ctx context.Context, email string) (UserRecord, error)
	GetUserByID    func(ctx context.Context, userID string) (UserRecord, error)
	HashPassword   func(string) (string, error)
	SetCredential  func(ctx context.Context, userID, hash string) error
	ResetFailures  func(ctx context.Context, email string) error

	IssueToken   func(ctx context.Context, purpose, email, userID string) (*IssueResult, error)
	ConsumeToken func(ctx context.Context, purpose, email, value string) (*ConsumedToken, error)
	RestoreToken func(ctx context.Context, token *ConsumedToken, value string) (bool, error)

	MetricInc func(int)
	EmitAudit auditFunc
	Warn      func(string, ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset issues a reset token when email belongs to a user
// with a local credential. Unknown emails and OAuth-only users return
// (nil, nil): the caller answers identically either way.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) (*IssueResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.GetUserByEmail == nil || deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, deps.Errors.InvalidInput
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", email, nil, func() map[string]string {
				return map[string]string{"reason": "user_not_found"}
			})
			return nil, nil
		}
		return nil, err
	}
	if user.CredentialHash == "" {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.ID, email, nil, func() map[string]string {
			return map[string]string{"reason": "no_credential"}
		})
		return nil, nil
	}

	return deps.IssueToken(ctx, PurposePasswordReset, user.Email, user.ID)
}

// RunResetPassword consumes a reset token and replaces the owner's credential.
// A failed hash or write restores the token so the link can be retried.
func RunResetPassword(ctx context.Context, value, newPassword string, deps PasswordResetDeps) (_ string, err error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.ConsumeToken == nil || deps.GetUserByEmail == nil || deps.GetUserByID == nil || deps.HashPassword == nil || deps.SetCredential == nil {
		return "", deps.Errors.EngineNotReady
	}

	if len(newPassword) < deps.MinPasswordLength {
		return "", deps.Errors.InvalidInput
	}

	token, err := deps.ConsumeToken(ctx, PurposePasswordReset, "", value)
	if err != nil {
		return "", err
	}
	defer func() {
		if err == nil || deps.RestoreToken == nil || isRejection(err, deps.Errors.NotFound, deps.Errors.TokenNotFound) {
			return
		}
		if _, rerr := deps.RestoreToken(context.WithoutCancel(ctx), token, value); rerr != nil {
			deps.Warn("goidentity: token restore failed", "purpose", PurposePasswordReset, "error", rerr)
		}
	}()

	var user UserRecord
	if token.UserID != "" {
		user, err = deps.GetUserByID(ctx, token.UserID)
	} else {
		user, err = deps.GetUserByEmail(ctx, token.Email)
	}
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return "", deps.Errors.TokenNotFound
		}
		return "", err
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	if err := deps.SetCredential(ctx, user.ID, hash); err != nil {
		return "", err
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, user.Email); err != nil {
			deps.Warn("goidentity: sign-in failure counter reset failed", "user_id", user.ID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, user.ID, user.Email, nil, nil)
	return user.ID, nil
}
