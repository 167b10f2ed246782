package goIdentity

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
)

// Role is the authorization role carried in session claims.
type Role string

const (
	// RoleUser is the default role for registered and OAuth-created users.
	RoleUser Role = "USER"
	// RoleAdmin grants access to admin-only surfaces.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// TokenPurpose identifies which flow a single-use token gates.
type TokenPurpose string

const (
	// PurposeEmailVerify gates email verification and pending email changes.
	PurposeEmailVerify TokenPurpose = "email_verify"
	// PurposePasswordReset gates password reset.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeTwoFactor gates the two-factor code exchange.
	PurposeTwoFactor TokenPurpose = "two_factor"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	switch p {
	case PurposeEmailVerify, PurposePasswordReset, PurposeTwoFactor:
		return true
	}
	return false
}

// User is the identity record owned by the [IdentityRepository].
//
// A nil EmailVerifiedAt means the email is unverified. An empty
// CredentialHash means the user has no local password (OAuth-only).
type User struct {
	ID                 string
	Email              string
	EmailVerifiedAt    *time.Time
	Name               string
	CredentialHash     string
	Role               Role
	IsTwoFactorEnabled bool
}

// EmailVerified reports whether EmailVerifiedAt is set.
func (u User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// LinkedAccount is a federated provider identity attached to a user.
type LinkedAccount struct {
	UserID            string
	Provider          string
	ProviderAccountID string
}

// NewUser is the input for [IdentityRepository.CreateUser].
type NewUser struct {
	Email           string
	Name            string
	CredentialHash  string
	Role            Role
	EmailVerifiedAt *time.Time
}

// UserPatch carries the partial field set written by [IdentityRepository.UpdateUser].
// Nil fields are left untouched.
type UserPatch struct {
	Name               *string
	CredentialHash     *string
	IsTwoFactorEnabled *bool
	Role               *Role
}

// Empty reports whether the patch writes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.CredentialHash == nil && p.IsTwoFactorEnabled == nil && p.Role == nil
}

// IdentityRepository is the durable store for users, linked accounts and
// two-factor confirmations. Implementations return [ErrNotFound] for missing
// records, [ErrEmailInUse] for unique email violations and wrap outages with
// [ErrStoreUnavailable]. Every call must honor ctx deadlines.
type IdentityRepository interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, input NewUser) (User, error)
	UpdateUser(ctx context.Context, userID string, patch UserPatch) error
	// SetVerifiedEmail writes email and emailVerifiedAt together.
	SetVerifiedEmail(ctx context.Context, userID, email string, verifiedAt time.Time) error

	GetAccountByUserID(ctx context.Context, userID string) (LinkedAccount, error)
	GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (LinkedAccount, error)
	// LinkAccount stores the account and stamps the owner's emailVerifiedAt
	// atomically. An existing emailVerifiedAt is kept.
	LinkAccount(ctx context.Context, account LinkedAccount, verifiedAt time.Time) error
	// CreateLinkedUser creates a user together with its first linked account.
	// Either both records are written or neither is. account.UserID is ignored.
	CreateLinkedUser(ctx context.Context, input NewUser, account LinkedAccount) (User, error)

	CreateTwoFactorConfirmation(ctx context.Context, userID string) error
	// ConsumeTwoFactorConfirmation deletes the confirmation and reports whether one existed.
	ConsumeTwoFactorConfirmation(ctx context.Context, userID string) (bool, error)
}

// CredentialHasher hashes and compares local passwords.
// Implementations live in the password package.
type CredentialHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) (bool, error)
}

// MailSender delivers one HTML message. Implementations live in the mail package.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Claims is the identity snapshot embedded in a session artifact.
type Claims struct {
	UserID             string
	Role               Role
	Name               string
	Email              string
	EmailVerified      bool
	IsOAuth            bool
	IsTwoFactorEnabled bool
}

// SessionView is the per-request projection of [Claims].
type SessionView struct {
	ID                 string
	Role               Role
	Name               string
	Email              string
	IsOAuth            bool
	IsTwoFactorEnabled bool
	ExpiresAt          time.Time
}

// SignInState is the terminal state of one sign-in attempt.
type SignInState int

const (
	// SignInAuthorized means claims were derived and a session artifact was issued.
	SignInAuthorized SignInState = iota + 1
	// SignInEmailUnverified means a fresh email-verify token was issued instead of a session.
	SignInEmailUnverified
	// SignInTwoFactorRequired means a two-factor code was issued and no confirmation existed.
	SignInTwoFactorRequired
)

func (s SignInState) String() string {
	switch s {
	case SignInAuthorized:
		return "authorized"
	case SignInEmailUnverified:
		return "email_unverified"
	case SignInTwoFactorRequired:
		return "two_factor_required"
	default:
		return "unknown"
	}
}

// SignInRequest is the credential sign-in payload.
// Code is optional; when set it is exchanged for a two-factor confirmation first.
type SignInRequest struct {
	Email    string
	Password string
	Code     string
}

// SignInResult reports the outcome of a sign-in attempt. Rejections are
// returned as errors instead.
//
// DeliveryErr is non-nil when a token was issued but its notification failed.
type SignInResult struct {
	State       SignInState
	UserID      string
	Claims      *Claims
	Session     string
	ExpiresAt   time.Time
	DeliveryErr error
}

// OAuthProfile is the provider-verified identity handed over on callback.
type OAuthProfile struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
}

// TokenReceipt describes an issued token without exposing its value.
type TokenReceipt struct {
	Email       string
	Purpose     TokenPurpose
	ExpiresAt   time.Time
	DeliveryErr error
}

// ConsumeResult describes a token removed by a successful consume.
type ConsumeResult struct {
	Email     string
	Purpose   TokenPurpose
	UserID    string
	ExpiresAt time.Time
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// RegisterResult is returned by a registration; the account stays unverified
// until the mailed token is confirmed.
type RegisterResult struct {
	UserID       string
	Verification *TokenReceipt
}

// FieldStatus reports what a settings update did with one requested field.
type FieldStatus int

const (
	// FieldNotRequested means the field was absent from the request.
	FieldNotRequested FieldStatus = iota
	// FieldApplied means the field was written.
	FieldApplied
	// FieldUnchanged means the requested value equals the stored one.
	FieldUnchanged
	// FieldPendingVerification means an email change is waiting for token consumption.
	FieldPendingVerification
	// FieldIgnored means the field is restricted for this subject and was discarded.
	FieldIgnored
	// FieldDeferred means the field was valid but dropped because an email change
	// short-circuited the update. Resubmit it separately.
	FieldDeferred
)

func (s FieldStatus) String() string {
	switch s {
	case FieldNotRequested:
		return "not_requested"
	case FieldApplied:
		return "applied"
	case FieldUnchanged:
		return "unchanged"
	case FieldPendingVerification:
		return "pending_verification"
	case FieldIgnored:
		return "ignored"
	case FieldDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// SettingsRequest is a self-service profile change. Nil fields are not requested.
type SettingsRequest struct {
	Name               *string
	Email              *string
	Password           *string
	NewPassword        *string
	IsTwoFactorEnabled *bool
	Role               *Role
}

// SettingsResult reports every requested field's status separately.
type SettingsResult struct {
	Email       FieldStatus
	Password    FieldStatus
	Name        FieldStatus
	TwoFactor   FieldStatus
	Role        FieldStatus
	DeliveryErr error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger falls back to slog.Default.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
