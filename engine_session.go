package goIdentity

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/jwt"
)

// DeriveClaims re-reads userID and its linked accounts and returns the claim
// set for a new session artifact.
func (e *Engine) DeriveClaims(ctx context.Context, userID string) (Claims, error) {
	if !e.ready() {
		return Claims{}, ErrEngineNotReady
	}
	set, err := internalflows.RunDeriveClaims(ctx, userID, e.claimsFlowDeps())
	if err != nil {
		return Claims{}, err
	}
	return fromFlowClaims(set), nil
}

// IssueSession signs claims into a session artifact that expires after
// Config.Session.TTL.
func (e *Engine) IssueSession(ctx context.Context, claims Claims) (string, time.Time, error) {
	if !e.ready() {
		return "", time.Time{}, ErrEngineNotReady
	}
	if claims.UserID == "" {
		return "", time.Time{}, ErrUnauthorized
	}

	artifact, expiresAt, err := e.sessions.CreateSession(jwt.SessionClaims{
		UID:           claims.UserID,
		Role:          string(claims.Role),
		Name:          claims.Name,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		OAuth:         claims.IsOAuth,
		TwoFactor:     claims.IsTwoFactorEnabled,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, claims.UserID, claims.Email, nil, nil)
	return artifact, expiresAt, nil
}

// Session verifies artifact and returns its projection. Claims are trusted
// for the artifact's lifetime unless Config.Session.RevalidateOnRead is set.
func (e *Engine) Session(ctx context.Context, artifact string) (SessionView, error) {
	if !e.ready() {
		return SessionView{}, ErrEngineNotReady
	}
	view, err := internalflows.RunMaterializeSession(ctx, artifact, e.claimsFlowDeps())
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return SessionView{}, err
	}
	return SessionView{
		ID:                 view.ID,
		Role:               Role(view.Role),
		Name:               view.Name,
		Email:              view.Email,
		IsOAuth:            view.IsOAuth,
		IsTwoFactorEnabled: view.TwoFactorEnabled,
		ExpiresAt:          view.ExpiresAt,
	}, nil
}

// ReissueSession re-derives claims for the subject of a still valid artifact
// and signs a fresh one. It is the point where role or flag changes made
// since sign-in reach the artifact.
func (e *Engine) ReissueSession(ctx context.Context, artifact string) (string, time.Time, error) {
	if !e.ready() {
		return "", time.Time{}, ErrEngineNotReady
	}
	view, err := internalflows.RunMaterializeSession(ctx, artifact, e.claimsFlowDeps())
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return "", time.Time{}, err
	}
	claims, err := e.DeriveClaims(ctx, view.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	return e.IssueSession(ctx, claims)
}

// RequireRole returns ErrForbidden unless the view carries role. Admins pass
// every check.
func RequireRole(view SessionView, role Role) error {
	if view.ID == "" {
		return ErrUnauthorized
	}
	if view.Role == role || view.Role == RoleAdmin {
		return nil
	}
	return ErrForbidden
}

// authorize derives claims for userID and signs the session for a completed sign-in.
func (e *Engine) authorize(ctx context.Context, userID string) (*SignInResult, error) {
	claims, err := e.DeriveClaims(ctx, userID)
	if err != nil {
		return nil, err
	}
	artifact, expiresAt, err := e.IssueSession(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &SignInResult{
		State:     SignInAuthorized,
		UserID:    userID,
		Claims:    &claims,
		Session:   artifact,
		ExpiresAt: expiresAt,
	}, nil
}

func (e *Engine) claimsFlowDeps() internalflows.ClaimsDeps {
	deps := internalflows.ClaimsDeps{
		RevalidateOnRead: e.config.Session.RevalidateOnRead,
		Errors: internalflows.ClaimsErrors{
			EngineNotReady: ErrEngineNotReady,
			Unauthorized:   ErrUnauthorized,
			NotFound:       ErrNotFound,
			SessionInvalid: ErrSessionInvalid,
		},
	}
	if e.repo != nil {
		deps.GetUserByID = e.getFlowUserByID
		deps.HasLinkedAccount = e.hasLinkedAccount
	}
	if e.sessions != nil {
		deps.ParseSession = func(artifact string) (internalflows.ClaimSet, time.Time, error) {
			c, err := e.sessions.ParseSession(artifact)
			if err != nil {
				return internalflows.ClaimSet{}, time.Time{}, err
			}
			var exp time.Time
			if c.ExpiresAt != nil {
				exp = c.ExpiresAt.Time
			}
			return internalflows.ClaimSet{
				UserID:           c.UID,
				Role:             c.Role,
				Name:             c.Name,
				Email:            c.Email,
				EmailVerified:    c.EmailVerified,
				IsOAuth:          c.OAuth,
				TwoFactorEnabled: c.TwoFactor,
			}, exp, nil
		}
	}
	return deps
}

func fromFlowClaims(c internalflows.ClaimSet) Claims {
	return Claims{
		UserID:             c.UserID,
		Role:               Role(c.Role),
		Name:               c.Name,
		Email:              c.Email,
		EmailVerified:      c.EmailVerified,
		IsOAuth:            c.IsOAuth,
		IsTwoFactorEnabled: c.TwoFactorEnabled,
	}
}
