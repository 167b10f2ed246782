package flows

import (
	"context"
	"errors"
	"time"
)

// SignInOutcome is the terminal state of a credential sign-in.
type SignInOutcome int

const (
	SignInAuthorized SignInOutcome = iota + 1
	SignInEmailUnverified
	SignInTwoFactorRequired
)

// SignInInput is the flow-local credential payload.
type SignInInput struct {
	Email    string
	Password string
	Code     string
}

// SignInResult is the flow-local sign-in response shape.
type SignInResult struct {
	Outcome     SignInOutcome
	UserID      string
	ExpiresAt   time.Time
	DeliveryErr error
}

// SignInMetrics carries metric IDs needed by sign-in flows.
type SignInMetrics struct {
	SignInAuthorized   int
	SignInRejected     int
	SignInRateLimited  int
	SignInUnverified   int
	TwoFactorRequired  int
	TwoFactorConfirmed int
	TwoFactorFailure   int
}

// SignInEvents carries audit event names used by sign-in flows.
type SignInEvents struct {
	SignInSuccess      string
	SignInFailure      string
	SignInRateLimited  string
	SignInUnverified   string
	TwoFactorRequired  string
	TwoFactorConfirmed string
	TwoFactorFailure   string
}

// SignInErrors carries host-level sentinel errors used by sign-in flows.
type SignInErrors struct {
	EngineNotReady     error
	InvalidInput       error
	InvalidCredentials error
	SignInRateLimited  error
	NotFound           error
	TokenNotFound      error
	TokenRateLimited   error
}

// SignInDeps captures credential sign-in and two-factor exchange dependencies.
type SignInDeps struct {
	Now func() time.Time

	CheckLockout  func(ctx context.Context, email string) error
	RecordFailure func(ctx context.Context, email string) (bool, error)
	ResetFailures func(ctx context.Context, email string) error

	GetUserByEmail func(ctx context.Context, email string) (UserRecord, error)
	VerifyPassword func(secret, hash string) (bool, error)

	IssueToken          func(ctx context.Context, purpose, email, userID string) (*IssueResult, error)
	ConsumeTwoFactor    func(ctx context.Context, email, code string) (*ConsumedToken, error)
	CreateConfirmation  func(ctx context.Context, userID string) error
	ConsumeConfirmation func(ctx context.Context, userID string) (bool, error)

	MetricInc func(int)
	EmitAudit auditFunc
	Warn      func(string, ...any)

	Metrics SignInMetrics
	Events  SignInEvents
	Errors  SignInErrors
}

func normalizeSignInDeps(deps *SignInDeps) {
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

// RunSignIn drives one credential sign-in attempt through the lockout,
// credential, email-verification and two-factor gates.
//
// An unverified user always receives a fresh email-verify token, whether or
// not the password matched; only a matching password reports the
// EmailUnverified outcome, so the response never confirms an account to a
// caller without its credential. Inside the resend throttle the previous
// token is still live, so the outcome stays EmailUnverified with a zero
// ExpiresAt instead of surfacing the throttle.
func RunSignIn(ctx context.Context, in SignInInput, deps SignInDeps) (*SignInResult, error) {
	normalizeSignInDeps(&deps)
	if deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueToken == nil ||
		deps.ConsumeConfirmation == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, deps.Errors.InvalidInput
	}

	if deps.CheckLockout != nil {
		if err := deps.CheckLockout(ctx, email); err != nil {
			if errors.Is(err, deps.Errors.SignInRateLimited) {
				deps.MetricInc(deps.Metrics.SignInRateLimited)
				deps.EmitAudit(ctx, deps.Events.SignInRateLimited, false, "", email, err, nil)
			}
			return nil, err
		}
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return nil, rejectSignIn(ctx, &deps, "", email, "user_not_found")
		}
		return nil, err
	}
	if user.CredentialHash == "" {
		return nil, rejectSignIn(ctx, &deps, user.ID, email, "no_credential")
	}

	if !user.EmailVerified {
		issued, issueErr := deps.IssueToken(ctx, PurposeEmailVerify, user.Email, user.ID)
		ok, verr := deps.VerifyPassword(in.Password, user.CredentialHash)
		if verr != nil || !ok {
			return nil, rejectSignIn(ctx, &deps, user.ID, email, "password_mismatch")
		}
		throttled := issueErr != nil && deps.Errors.TokenRateLimited != nil && errors.Is(issueErr, deps.Errors.TokenRateLimited)
		if issueErr != nil && !throttled {
			return nil, issueErr
		}

		deps.MetricInc(deps.Metrics.SignInUnverified)
		deps.EmitAudit(ctx, deps.Events.SignInUnverified, false, user.ID, email, nil, func() map[string]string {
			if throttled {
				return map[string]string{"resend": "throttled"}
			}
			return nil
		})
		result := &SignInResult{Outcome: SignInEmailUnverified, UserID: user.ID}
		if issued != nil {
			result.ExpiresAt = issued.ExpiresAt
			result.DeliveryErr = issued.DeliveryErr
		}
		return result, nil
	}

	ok, err := deps.VerifyPassword(in.Password, user.CredentialHash)
	if err != nil || !ok {
		return nil, rejectSignIn(ctx, &deps, user.ID, email, "password_mismatch")
	}

	if user.TwoFactorEnabled {
		if in.Code != "" {
			if err := exchangeTwoFactorCode(ctx, &deps, user, in.Code); err != nil {
				return nil, err
			}
		}

		confirmed, err := deps.ConsumeConfirmation(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			issued, err := deps.IssueToken(ctx, PurposeTwoFactor, user.Email, user.ID)
			if err != nil {
				return nil, err
			}
			deps.MetricInc(deps.Metrics.TwoFactorRequired)
			deps.EmitAudit(ctx, deps.Events.TwoFactorRequired, true, user.ID, email, nil, nil)
			return &SignInResult{
				Outcome:     SignInTwoFactorRequired,
				UserID:      user.ID,
				ExpiresAt:   issued.ExpiresAt,
				DeliveryErr: issued.DeliveryErr,
			}, nil
		}
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, email); err != nil {
			deps.Warn("goidentity: sign-in failure counter reset failed", "user_id", user.ID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.SignInAuthorized)
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, user.ID, email, nil, func() map[string]string {
		return map[string]string{"method": "credentials"}
	})
	return &SignInResult{
		Outcome: SignInAuthorized,
		UserID:  user.ID,
	}, nil
}

// RunVerifyTwoFactor exchanges a two-factor code for a confirmation record.
// The confirmation is consumed by the user's next completed sign-in.
func RunVerifyTwoFactor(ctx context.Context, email, code string, deps SignInDeps) (string, error) {
	normalizeSignInDeps(&deps)
	if deps.GetUserByEmail == nil || deps.ConsumeTwoFactor == nil || deps.CreateConfirmation == nil {
		return "", deps.Errors.EngineNotReady
	}

	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return "", deps.Errors.InvalidInput
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return "", deps.Errors.TokenNotFound
		}
		return "", err
	}
	if err := exchangeTwoFactorCode(ctx, &deps, user, code); err != nil {
		return "", err
	}
	return user.ID, nil
}

func exchangeTwoFactorCode(ctx context.Context, deps *SignInDeps, user UserRecord, code string) error {
	if deps.ConsumeTwoFactor == nil || deps.CreateConfirmation == nil {
		return deps.Errors.EngineNotReady
	}

	email := NormalizeEmail(user.Email)
	if _, err := deps.ConsumeTwoFactor(ctx, email, code); err != nil {
		deps.MetricInc(deps.Metrics.TwoFactorFailure)
		deps.EmitAudit(ctx, deps.Events.TwoFactorFailure, false, user.ID, email, err, nil)
		return err
	}
	if err := deps.CreateConfirmation(ctx, user.ID); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.TwoFactorConfirmed)
	deps.EmitAudit(ctx, deps.Events.TwoFactorConfirmed, true, user.ID, email, nil, nil)
	return nil
}

func rejectSignIn(ctx context.Context, deps *SignInDeps, userID, email, reason string) error {
	deps.MetricInc(deps.Metrics.SignInRejected)
	locked := false
	if deps.RecordFailure != nil {
		var err error
		locked, err = deps.RecordFailure(ctx, email)
		if err != nil {
			deps.Warn("goidentity: sign-in failure not recorded", "email", email, "error", err)
		}
	}
	deps.EmitAudit(ctx, deps.Events.SignInFailure, false, userID, email, deps.Errors.InvalidCredentials, func() map[string]string {
		meta := map[string]string{"reason": reason}
		if locked {
			meta["locked"] = "true"
		}
		return meta
	})
	return deps.Errors.InvalidCredentials
}
