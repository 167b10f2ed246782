package goIdentity

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// OAuthSignIn completes a federated sign-in for a provider-verified profile.
//
// The first callback for a provider identity creates the user (or, with
// Config.OAuth.AllowEmailLinking, attaches to the user owning the email) and
// marks the email verified. Later callbacks only re-authenticate. OAuth
// sign-ins never hit the two-factor gate.
func (e *Engine) OAuthSignIn(ctx context.Context, profile OAuthProfile) (*SignInResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := internalflows.RunOAuthCallback(ctx, internalflows.OAuthInput{
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		Email:             profile.Email,
		Name:              profile.Name,
	}, e.oauthFlowDeps())
	if err != nil {
		return nil, err
	}
	return e.authorize(ctx, res.UserID)
}

func (e *Engine) oauthFlowDeps() internalflows.OAuthDeps {
	deps := internalflows.OAuthDeps{
		AllowEmailLinking: e.config.OAuth.AllowEmailLinking,
		Now:               e.now,
		MetricInc:         e.flowMetricInc,
		EmitAudit:         e.emitAudit,
		Metrics: internalflows.OAuthMetrics{
			SignInAuthorized: int(MetricSignInAuthorized),
			OAuthLinked:      int(MetricOAuthLinked),
			OAuthRejected:    int(MetricOAuthRejected),
		},
		Events: internalflows.OAuthEvents{
			SignInSuccess: auditEventSignInSuccess,
			OAuthLinked:   auditEventOAuthLinked,
			OAuthRejected: auditEventOAuthRejected,
		},
		Errors: internalflows.OAuthErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidInput:     ErrInvalidInput,
			NotFound:         ErrNotFound,
			AccountNotLinked: ErrOAuthAccountNotLinked,
		},
	}
	if e.repo == nil {
		return deps
	}

	deps.GetAccountByProvider = func(ctx context.Context, provider, providerAccountID string) (string, error) {
		acct, err := e.repo.GetAccountByProvider(ctx, provider, providerAccountID)
		if err != nil {
			return "", repoErr(err)
		}
		return acct.UserID, nil
	}
	deps.GetUserByEmail = e.getFlowUserByEmail
	deps.CreateLinkedUser = func(ctx context.Context, email, name, provider, providerAccountID string, verifiedAt time.Time) (string, error) {
		u, err := e.repo.CreateLinkedUser(ctx, NewUser{
			Email:           email,
			Name:            name,
			Role:            RoleUser,
			EmailVerifiedAt: &verifiedAt,
		}, LinkedAccount{
			Provider:          provider,
			ProviderAccountID: providerAccountID,
		})
		if err != nil {
			return "", repoErr(err)
		}
		return u.ID, nil
	}
	deps.LinkAccount = func(ctx context.Context, userID, provider, providerAccountID string, verifiedAt time.Time) error {
		return repoErr(e.repo.LinkAccount(ctx, LinkedAccount{
			UserID:            userID,
			Provider:          provider,
			ProviderAccountID: providerAccountID,
		}, verifiedAt))
	}
	return deps
}
