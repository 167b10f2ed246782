package goIdentity

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// SignIn runs one credential sign-in attempt.
//
// Rejections come back as errors: [ErrInvalidCredentials] for an unknown
// email, a missing credential or a wrong password alike, and
// [ErrSignInRateLimited] while the email is locked out. Otherwise the result
// is one of three states. EmailUnverified and TwoFactorRequired carry no
// session; a token was mailed instead. With req.Code set, a two-factor user
// exchanges the code and completes in the same call.
func (e *Engine) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	if e.metrics.LatencyEnabled() {
		defer func() { e.metrics.Observe(MetricSignInLatency, time.Since(start)) }()
	}

	res, err := internalflows.RunSignIn(ctx, internalflows.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		Code:     req.Code,
	}, e.signInFlowDeps())
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case internalflows.SignInEmailUnverified:
		return &SignInResult{
			State:       SignInEmailUnverified,
			UserID:      res.UserID,
			ExpiresAt:   res.ExpiresAt,
			DeliveryErr: res.DeliveryErr,
		}, nil
	case internalflows.SignInTwoFactorRequired:
		return &SignInResult{
			State:       SignInTwoFactorRequired,
			UserID:      res.UserID,
			ExpiresAt:   res.ExpiresAt,
			DeliveryErr: res.DeliveryErr,
		}, nil
	default:
		return e.authorize(ctx, res.UserID)
	}
}

// VerifyTwoFactor exchanges the mailed code for a two-factor confirmation.
// The confirmation is consumed by the user's next completed sign-in, in this
// process or any other sharing the same repository.
func (e *Engine) VerifyTwoFactor(ctx context.Context, email, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := internalflows.RunVerifyTwoFactor(ctx, email, code, e.signInFlowDeps())
	return err
}

func (e *Engine) signInFlowDeps() internalflows.SignInDeps {
	deps := internalflows.SignInDeps{
		Now: e.now,
		CheckLockout: func(ctx context.Context, email string) error {
			return mapLimiterError(e.signInLimiter.Check(ctx, email))
		},
		RecordFailure: e.signInLimiter.RecordFailure,
		ResetFailures: e.signInLimiter.Reset,
		IssueToken:    e.issueToken,
		ConsumeTwoFactor: func(ctx context.Context, email, code string) (*internalflows.ConsumedToken, error) {
			return e.consumeToken(ctx, internalflows.PurposeTwoFactor, email, code)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: internalflows.SignInMetrics{
			SignInAuthorized:   int(MetricSignInAuthorized),
			SignInRejected:     int(MetricSignInRejected),
			SignInRateLimited:  int(MetricSignInRateLimited),
			SignInUnverified:   int(MetricSignInUnverified),
			TwoFactorRequired:  int(MetricTwoFactorRequired),
			TwoFactorConfirmed: int(MetricTwoFactorConfirmed),
			TwoFactorFailure:   int(MetricTwoFactorFailure),
		},
		Events: internalflows.SignInEvents{
			SignInSuccess:      auditEventSignInSuccess,
			SignInFailure:      auditEventSignInFailure,
			SignInRateLimited:  auditEventSignInRateLimited,
			SignInUnverified:   auditEventSignInUnverified,
			TwoFactorRequired:  auditEventTwoFactorRequired,
			TwoFactorConfirmed: auditEventTwoFactorConfirmed,
			TwoFactorFailure:   auditEventTwoFactorFailure,
		},
		Errors: internalflows.SignInErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			InvalidCredentials: ErrInvalidCredentials,
			SignInRateLimited:  ErrSignInRateLimited,
			NotFound:           ErrNotFound,
			TokenNotFound:      ErrTokenNotFound,
			TokenRateLimited:   ErrTokenRateLimited,
		},
	}
	if e.repo != nil {
		deps.GetUserByEmail = e.getFlowUserByEmail
		deps.CreateConfirmation = func(ctx context.Context, userID string) error {
			return repoErr(e.repo.CreateTwoFactorConfirmation(ctx, userID))
		}
		deps.ConsumeConfirmation = func(ctx context.Context, userID string) (bool, error) {
			ok, err := e.repo.ConsumeTwoFactorConfirmation(ctx, userID)
			return ok, repoErr(err)
		}
	}
	if e.hasher != nil {
		deps.VerifyPassword = e.verifyPassword
	}
	return deps
}
