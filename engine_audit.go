package goIdentity

import (
	"context"
	"errors"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignInRateLimited    = "sign_in_rate_limited"
	auditEventSignInUnverified     = "sign_in_email_unverified"
	auditEventTwoFactorRequired    = "two_factor_required"
	auditEventTwoFactorConfirmed   = "two_factor_confirmed"
	auditEventTwoFactorFailure     = "two_factor_failure"
	auditEventOAuthLinked          = "oauth_linked"
	auditEventOAuthRejected        = "oauth_rejected"
	auditEventTokenIssued          = "token_issued"
	auditEventTokenConsumed        = "token_consumed"
	auditEventRegister             = "register"
	auditEventEmailVerified        = "email_verified"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventSettingsUpdated      = "settings_updated"
	auditEventEmailChangeRequested = "email_change_requested"
	auditEventPasswordChanged      = "password_changed"
	auditEventSessionIssued        = "session_issued"
)

// AuditErrorCode is the stable string recorded in [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrEmailInUse         AuditErrorCode = "email_in_use"
	auditErrIncorrectPassword  AuditErrorCode = "incorrect_password"
	auditErrTokenNotFound      AuditErrorCode = "token_not_found"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrNotLinked          AuditErrorCode = "account_not_linked"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrEmailInUse):
		return auditErrEmailInUse
	case errors.Is(err, ErrIncorrectPassword):
		return auditErrIncorrectPassword
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrTokenRateLimited), errors.Is(err, ErrSignInRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrOAuthAccountNotLinked):
		return auditErrNotLinked
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
