package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// RequestPasswordReset mails a reset link when email belongs to a user with
// a local password. The answer is the same for unknown and OAuth-only
// addresses: a nil receipt and a nil error.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*TokenReceipt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunRequestPasswordReset(ctx, email, e.passwordResetFlowDeps())
	if err != nil {
		return nil, err
	}
	return toTokenReceipt(res), nil
}

// ResetPassword consumes a reset token and replaces the owner's password.
// A successful reset also clears the sign-in lockout for that email.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := internalflows.RunResetPassword(ctx, token, newPassword, e.passwordResetFlowDeps())
	return err
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		MinPasswordLength: e.config.Password.MinLength,
		GetUserByEmail:    e.getFlowUserByEmail,
		GetUserByID:       e.getFlowUserByID,
		HashPassword:      e.hashPassword,
		SetCredential: func(ctx context.Context, userID, hash string) error {
			return repoErr(e.repo.UpdateUser(ctx, userID, UserPatch{CredentialHash: &hash}))
		},
		ResetFailures: e.signInLimiter.Reset,
		IssueToken:    e.issueToken,
		ConsumeToken:  e.consumeToken,
		RestoreToken:  e.restoreToken,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Warn:          e.warn,
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest: int(MetricPasswordResetRequest),
			PasswordResetSuccess: int(MetricPasswordResetSuccess),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			NotFound:       ErrNotFound,
			TokenNotFound:  ErrTokenNotFound,
		},
	}
}
