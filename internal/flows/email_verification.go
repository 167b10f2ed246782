package flows

import (
	"context"
	"errors"
	"time"
)

type VerificationMetrics struct {
	EmailVerified int
	EmailConflict int
}

type VerificationEvents struct {
	EmailVerified string
}

type VerificationErrors struct {
	EngineNotReady error
	InvalidInput   error
	NotFound       error
	EmailInUse     error
	TokenNotFound  error
}

// VerificationDeps captures email verification dependencies.
type VerificationDeps struct {
	Now func() time.Time

	ConsumeToken     func(ctx context.Context, purpose, email, value string) (*ConsumedToken, error)
	RestoreToken     func(ctx context.Context, token *ConsumedToken, value string) (bool, error)
	IssueToken       func(ctx context.Context, purpose, email, userID string) (*IssueResult, error)
	GetUserByEmail   func(ctx context.Context, email string) (UserRecord, error)
	GetUserByID      func(ctx context.Context, userID string) (UserRecord, error)
	SetVerifiedEmail func(ctx context.Context, userID, email string, verifiedAt time.Time) error

	MetricInc func(int)
	EmitAudit auditFunc
	Warn      func(string, ...any)

	Metrics VerificationMetrics
	Events  VerificationEvents
	Errors  VerificationErrors
}

// RunConfirmEmail consumes an email-verify token and stamps its email as the
// verified address of the token's owner. This is also the step that applies
// a pending email change. When the write fails for a reason other than a
// rejection the token is restored so the link can be retried.
func RunConfirmEmail(ctx context.Context, value string, deps VerificationDeps) (_ string, err error) {
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
	if deps.ConsumeToken == nil || deps.GetUserByEmail == nil || deps.GetUserByID == nil || deps.SetVerifiedEmail == nil {
		return "", deps.Errors.EngineNotReady
	}

	token, err := deps.ConsumeToken(ctx, PurposeEmailVerify, "", value)
	if err != nil {
		return "", err
	}
	defer func() {
		if err == nil || deps.RestoreToken == nil || isRejection(err, deps.Errors.NotFound, deps.Errors.EmailInUse, deps.Errors.TokenNotFound) {
			return
		}
		if _, rerr := deps.RestoreToken(context.WithoutCancel(ctx), token, value); rerr != nil {
			deps.Warn("goidentity: token restore failed", "purpose", PurposeEmailVerify, "error", rerr)
		}
	}()

	owner, err := deps.GetUserByEmail(ctx, token.Email)
	ownerFound := err == nil
	if err != nil && !errors.Is(err, deps.Errors.NotFound) {
		return "", err
	}

	userID := token.UserID
	if userID == "" {
		if !ownerFound {
			return "", deps.Errors.TokenNotFound
		}
		userID = owner.ID
	}
	if ownerFound && owner.ID != userID {
		deps.MetricInc(deps.Metrics.EmailConflict)
		deps.EmitAudit(ctx, deps.Events.EmailVerified, false, userID, token.Email, deps.Errors.EmailInUse, nil)
		return "", deps.Errors.EmailInUse
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return "", deps.Errors.TokenNotFound
		}
		return "", err
	}

	if err := deps.SetVerifiedEmail(ctx, user.ID, token.Email, deps.Now()); err != nil {
		return "", err
	}

	deps.MetricInc(deps.Metrics.EmailVerified)
	deps.EmitAudit(ctx, deps.Events.EmailVerified, true, user.ID, token.Email, nil, func() map[string]string {
		if NormalizeEmail(user.Email) != token.Email {
			return map[string]string{"email_changed": "true"}
		}
		return nil
	})
	return user.ID, nil
}

// RunResendVerification issues a new email-verify token for an unverified
// user. Unknown and already verified emails return (nil, nil) so callers
// cannot probe for accounts.
func RunResendVerification(ctx context.Context, email string, deps VerificationDeps) (*IssueResult, error) {
	if deps.GetUserByEmail == nil || deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" {
		return nil, deps.Errors.InvalidInput
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	if user.EmailVerified {
		return nil, nil
	}
	return deps.IssueToken(ctx, PurposeEmailVerify, user.Email, user.ID)
}
