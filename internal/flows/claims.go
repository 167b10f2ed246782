package flows

import (
	"context"
	"errors"
	"time"
)

// ClaimSet is the flow-local claim set embedded in a session artifact.
type ClaimSet struct {
	UserID           string
	Role             string
	Name             string
	Email            string
	EmailVerified    bool
	IsOAuth          bool
	TwoFactorEnabled bool
}

// SessionProjection is the per-request view built from a ClaimSet.
type SessionProjection struct {
	ID               string
	Role             string
	Name             string
	Email            string
	IsOAuth          bool
	TwoFactorEnabled bool
	ExpiresAt        time.Time
}

type ClaimsErrors struct {
	EngineNotReady error
	Unauthorized   error
	NotFound       error
	SessionInvalid error
}

// ClaimsDeps captures claim derivation and session materialization dependencies.
type ClaimsDeps struct {
	RevalidateOnRead bool

	GetUserByID      func(ctx context.Context, userID string) (UserRecord, error)
	HasLinkedAccount func(ctx context.Context, userID string) (bool, error)

	// ParseSession verifies an artifact and returns its claims and expiry.
	ParseSession func(artifact string) (ClaimSet, time.Time, error)

	Errors ClaimsErrors
}

// RunDeriveClaims re-reads the user and its linked accounts and builds the
// claim set. Nothing is cached between calls.
func RunDeriveClaims(ctx context.Context, userID string, deps ClaimsDeps) (ClaimSet, error) {
	if deps.GetUserByID == nil || deps.HasLinkedAccount == nil {
		return ClaimSet{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return ClaimSet{}, deps.Errors.Unauthorized
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return ClaimSet{}, deps.Errors.Unauthorized
		}
		return ClaimSet{}, err
	}
	isOAuth, err := deps.HasLinkedAccount(ctx, user.ID)
	if err != nil {
		return ClaimSet{}, err
	}

	return ClaimSet{
		UserID:           user.ID,
		Role:             user.Role,
		Name:             user.Name,
		Email:            user.Email,
		EmailVerified:    user.EmailVerified,
		IsOAuth:          isOAuth,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}, nil
}

// Project is the pure claim-to-view mapping.
func Project(claims ClaimSet, expiresAt time.Time) SessionProjection {
	return SessionProjection{
		ID:               claims.UserID,
		Role:             claims.Role,
		Name:             claims.Name,
		Email:            claims.Email,
		IsOAuth:          claims.IsOAuth,
		TwoFactorEnabled: claims.TwoFactorEnabled,
		ExpiresAt:        expiresAt,
	}
}

// RunMaterializeSession verifies artifact and projects its claims. With
// RevalidateOnRead the claims are re-derived from the store first, so a
// deleted user is rejected and a changed role shows up immediately.
func RunMaterializeSession(ctx context.Context, artifact string, deps ClaimsDeps) (SessionProjection, error) {
	if deps.ParseSession == nil {
		return SessionProjection{}, deps.Errors.EngineNotReady
	}
	if artifact == "" {
		return SessionProjection{}, deps.Errors.Unauthorized
	}

	claims, expiresAt, err := deps.ParseSession(artifact)
	if err != nil {
		return SessionProjection{}, deps.Errors.SessionInvalid
	}

	if deps.RevalidateOnRead {
		fresh, err := RunDeriveClaims(ctx, claims.UserID, deps)
		if err != nil {
			return SessionProjection{}, err
		}
		claims = fresh
	}

	return Project(claims, expiresAt), nil
}
