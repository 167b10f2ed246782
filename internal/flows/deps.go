package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Token purposes as persisted.
const (
	PurposeEmailVerify   = "email_verify"
	PurposePasswordReset = "password_reset"
	PurposeTwoFactor     = "two_factor"
)

// IssueResult describes a persisted token. The plaintext value only travels
// to the notifier and is never returned.
type IssueResult struct {
	Email       string
	Purpose     string
	ExpiresAt   time.Time
	DeliveryErr error
}

// ConsumedToken is the record removed by a successful consume.
type ConsumedToken struct {
	Email     string
	Purpose   string
	UserID    string
	ExpiresAt time.Time
}

// UserRecord is the flow-local user model.
type UserRecord struct {
	ID               string
	Email            string
	Name             string
	CredentialHash   string
	Role             string
	EmailVerified    bool
	TwoFactorEnabled bool
}

type auditFunc = func(context.Context, string, bool, string, string, error, func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopMetric(int) {}

func noopWarn(string, ...any) {}

// NormalizeEmail lowercases and trims email. All email keys pass through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isRejection reports whether err matches one of the given outcomes. Nil
// entries are skipped.
func isRejection(err error, rejections ...error) bool {
	for _, r := range rejections {
		if r != nil && errors.Is(err, r) {
			return true
		}
	}
	return false
}
