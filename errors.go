package goIdentity

import "errors"

var (
	// ErrInvalidCredentials is returned for any rejected credential sign-in.
	// Unknown email, missing credential and wrong password all collapse to it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailInUse is returned when another user already owns the requested email.
	ErrEmailInUse = errors.New("email already in use")
	// ErrIncorrectPassword is returned by settings updates when the current password does not match.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrTokenNotFound is returned when a token is absent, replaced or already consumed.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when a token is consumed after its expiry. The token is deleted.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenAttemptsExceeded is returned when a two-factor code is guessed wrong too often.
	ErrTokenAttemptsExceeded = errors.New("token attempts exceeded")
	// ErrTokenRateLimited is returned when tokens for one email and purpose are requested too often.
	ErrTokenRateLimited = errors.New("token issuance rate limited")
	// ErrUnauthorized is returned when an operation requires an authenticated subject and none is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned by role checks.
	ErrForbidden = errors.New("forbidden")
	// ErrDeliveryFailed wraps mail collaborator failures. It never aborts the issuing flow.
	ErrDeliveryFailed = errors.New("mail delivery failed")
	// ErrStoreUnavailable wraps identity repository and token store outages.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by IdentityRepository implementations for missing records.
	ErrNotFound = errors.New("record not found")
	// ErrOAuthAccountNotLinked is returned when a provider identity maps to an existing
	// local user and automatic email linking is disabled.
	ErrOAuthAccountNotLinked = errors.New("oauth account not linked")
	// ErrSignInRateLimited is returned when an email exceeds the failed sign-in budget.
	ErrSignInRateLimited = errors.New("sign-in rate limited")
	// ErrInvalidInput is returned for malformed requests such as a short password.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionInvalid is returned when a session artifact fails verification.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrEngineNotReady is returned when the Engine was not built through Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
