package goIdentity

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// ConfirmEmail consumes an email-verify token and marks its address as the
// verified email of the token's owner. For a pending email change this is
// where the new address is written. It returns the owner's user id.
//
// If another user took the address while the token was outstanding the
// token is still spent and [ErrEmailInUse] is returned. A store failure while
// writing the address puts the token back, so the same link can be retried.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return internalflows.RunConfirmEmail(ctx, token, e.verificationFlowDeps())
}

// ResendVerification mails a new email-verify token to an unverified user.
// Unknown and already verified addresses return (nil, nil).
func (e *Engine) ResendVerification(ctx context.Context, email string) (*TokenReceipt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunResendVerification(ctx, email, e.verificationFlowDeps())
	if err != nil {
		return nil, err
	}
	return toTokenReceipt(res), nil
}

func (e *Engine) verificationFlowDeps() internalflows.VerificationDeps {
	return internalflows.VerificationDeps{
		Now:            e.now,
		ConsumeToken:   e.consumeToken,
		RestoreToken:   e.restoreToken,
		IssueToken:     e.issueToken,
		GetUserByEmail: e.getFlowUserByEmail,
		GetUserByID:    e.getFlowUserByID,
		SetVerifiedEmail: func(ctx context.Context, userID, email string, verifiedAt time.Time) error {
			return repoErr(e.repo.SetVerifiedEmail(ctx, userID, email, verifiedAt))
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: internalflows.VerificationMetrics{
			EmailVerified: int(MetricEmailVerified),
			EmailConflict: int(MetricEmailConflict),
		},
		Events: internalflows.VerificationEvents{
			EmailVerified: auditEventEmailVerified,
		},
		Errors: internalflows.VerificationErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			NotFound:       ErrNotFound,
			EmailInUse:     ErrEmailInUse,
			TokenNotFound:  ErrTokenNotFound,
		},
	}
}
