package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// OAuthInput is the provider-verified identity handed over on callback.
type OAuthInput struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
}

// OAuthResult reports how the callback resolved to a user.
type OAuthResult struct {
	UserID  string
	Created bool
	Linked  bool
}

type OAuthMetrics struct {
	SignInAuthorized int
	OAuthLinked      int
	OAuthRejected    int
}

type OAuthEvents struct {
	SignInSuccess string
	OAuthLinked   string
	OAuthRejected string
}

type OAuthErrors struct {
	EngineNotReady   error
	InvalidInput     error
	NotFound         error
	AccountNotLinked error
}

// OAuthDeps captures federated sign-in dependencies.
type OAuthDeps struct {
	AllowEmailLinking bool

	Now func() time.Time

	GetAccountByProvider func(ctx context.Context, provider, providerAccountID string) (string, error)
	GetUserByEmail       func(ctx context.Context, email string) (UserRecord, error)

	// CreateLinkedUser writes the verified user and its account together.
	CreateLinkedUser func(ctx context.Context, email, name, provider, providerAccountID string, verifiedAt time.Time) (string, error)
	LinkAccount      func(ctx context.Context, userID, provider, providerAccountID string, verifiedAt time.Time) error

	MetricInc func(int)
	EmitAudit auditFunc

	Metrics OAuthMetrics
	Events  OAuthEvents
	Errors  OAuthErrors
}

// RunOAuthCallback resolves a provider identity to a user. A known
// (provider, account id) pair is a plain re-authentication. A new pair
// creates the user and its account in one repository write when the email is
// free, so a failed callback leaves nothing behind and can be retried.
// Linking stamps the email as verified. OAuth sign-ins skip the two-factor
// gate.
func RunOAuthCallback(ctx context.Context, in OAuthInput, deps OAuthDeps) (*OAuthResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.GetAccountByProvider == nil ||
		deps.GetUserByEmail == nil ||
		deps.CreateLinkedUser == nil ||
		deps.LinkAccount == nil {
		return nil, deps.Errors.EngineNotReady
	}

	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	accountID := strings.TrimSpace(in.ProviderAccountID)
	if provider == "" || provider == "credentials" || accountID == "" {
		return nil, deps.Errors.InvalidInput
	}
	email := NormalizeEmail(in.Email)

	userID, err := deps.GetAccountByProvider(ctx, provider, accountID)
	if err == nil {
		deps.MetricInc(deps.Metrics.SignInAuthorized)
		deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, userID, email, nil, func() map[string]string {
			return map[string]string{"method": "oauth", "provider": provider}
		})
		return &OAuthResult{UserID: userID}, nil
	}
	if !errors.Is(err, deps.Errors.NotFound) {
		return nil, err
	}

	if email == "" {
		deps.MetricInc(deps.Metrics.OAuthRejected)
		deps.EmitAudit(ctx, deps.Events.OAuthRejected, false, "", "", deps.Errors.InvalidInput, func() map[string]string {
			return map[string]string{"provider": provider, "reason": "missing_email"}
		})
		return nil, deps.Errors.InvalidInput
	}

	now := deps.Now()
	result := &OAuthResult{Linked: true}

	existing, err := deps.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !deps.AllowEmailLinking {
			deps.MetricInc(deps.Metrics.OAuthRejected)
			deps.EmitAudit(ctx, deps.Events.OAuthRejected, false, existing.ID, email, deps.Errors.AccountNotLinked, func() map[string]string {
				return map[string]string{"provider": provider, "reason": "email_owned"}
			})
			return nil, deps.Errors.AccountNotLinked
		}
		result.UserID = existing.ID
	case errors.Is(err, deps.Errors.NotFound):
		id, err := deps.CreateLinkedUser(ctx, email, strings.TrimSpace(in.Name), provider, accountID, now)
		if err != nil {
			return nil, err
		}
		result.UserID = id
		result.Created = true
	default:
		return nil, err
	}

	if !result.Created {
		if err := deps.LinkAccount(ctx, result.UserID, provider, accountID, now); err != nil {
			return nil, err
		}
	}

	deps.MetricInc(deps.Metrics.OAuthLinked)
	deps.MetricInc(deps.Metrics.SignInAuthorized)
	deps.EmitAudit(ctx, deps.Events.OAuthLinked, true, result.UserID, email, nil, func() map[string]string {
		meta := map[string]string{"provider": provider}
		if result.Created {
			meta["created"] = "true"
		}
		return meta
	})
	deps.EmitAudit(ctx, deps.Events.SignInSuccess, true, result.UserID, email, nil, func() map[string]string {
		return map[string]string{"method": "oauth", "provider": provider}
	})
	return result, nil
}
