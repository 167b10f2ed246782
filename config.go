package goIdentity

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Build clones it, so later
// mutation by the caller has no effect on a running Engine.
type Config struct {
	Session   SessionConfig
	Tokens    TokenConfig
	TwoFactor TwoFactorConfig
	SignIn    SignInConfig
	OAuth     OAuthConfig
	Password  PasswordConfig
	Settings  SettingsConfig
	Mail      MailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the signed session artifact.
//
// TTL is the window in which a stale role or flag can survive in an artifact.
// Keep it short, or set RevalidateOnRead to re-derive claims on every read.
type SessionConfig struct {
	TTL              time.Duration
	SigningMethod    string // "ed25519" (default), "hs256" optional
	PrivateKey       []byte
	PublicKey        []byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	RevalidateOnRead bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls email-verify and password-reset tokens plus the
// resend throttle shared by all purposes.
//
// ExpiredRetention keeps an expired record in Redis long enough to report
// ErrTokenExpired instead of ErrTokenNotFound.
type TokenConfig struct {
	RedisPrefix      string
	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration
	ExpiredRetention time.Duration
	ResendLimit      int
	ResendWindow     time.Duration
}

// TwoFactorConfig controls emailed two-factor codes.
type TwoFactorConfig struct {
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
}

// SignInConfig controls the per-email failed sign-in lockout.
type SignInConfig struct {
	LockoutEnabled bool
	MaxFailures    int
	LockoutWindow  time.Duration
}

// OAuthConfig controls federated sign-in policy.
//
// When AllowEmailLinking is false a provider identity whose email belongs to an
// existing local user is rejected with ErrOAuthAccountNotLinked.
type OAuthConfig struct {
	AllowEmailLinking bool
}

// PasswordConfig holds the local password policy. Hashing parameters belong
// to the CredentialHasher.
type PasswordConfig struct {
	MinLength int
}

// SettingsConfig controls the self-service settings flow.
type SettingsConfig struct {
	AllowRoleChange bool
}

// MailConfig controls links rendered into notification templates.
type MailConfig struct {
	AppURL           string
	VerificationPath string
	ResetPath        string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Session keys must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "goidentity",
		},
		Tokens: TokenConfig{
			RedisPrefix:      "gi",
			EmailVerifyTTL:   time.Hour,
			PasswordResetTTL: time.Hour,
			ExpiredRetention: 24 * time.Hour,
			ResendLimit:      5,
			ResendWindow:     15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:     5 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 5,
		},
		SignIn: SignInConfig{
			LockoutEnabled: true,
			MaxFailures:    10,
			LockoutWindow:  15 * time.Minute,
		},
		OAuth: OAuthConfig{
			AllowEmailLinking: false,
		},
		Password: PasswordConfig{
			MinLength: 6,
		},
		Mail: MailConfig{
			AppURL:           "http://localhost:3000",
			VerificationPath: "/auth/new-verification",
			ResetPath:        "/auth/new-password",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the Engine cannot run with.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch c.Session.SigningMethod {
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 || len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported session signing method")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}

	// Tokens
	if strings.TrimSpace(c.Tokens.RedisPrefix) == "" {
		return errors.New("Tokens RedisPrefix must be set")
	}
	if c.Tokens.EmailVerifyTTL <= 0 {
		return errors.New("Tokens EmailVerifyTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens PasswordResetTTL must be > 0")
	}
	if c.Tokens.ExpiredRetention < 0 {
		return errors.New("Tokens ExpiredRetention must be >= 0")
	}
	if c.Tokens.ResendLimit < 0 {
		return errors.New("Tokens ResendLimit must be >= 0")
	}
	if c.Tokens.ResendLimit > 0 && c.Tokens.ResendWindow <= 0 {
		return errors.New("Tokens ResendWindow must be > 0 when ResendLimit is set")
	}

	// Two-factor codes are short-lived by contract.
	if c.TwoFactor.CodeTTL <= 0 || c.TwoFactor.CodeTTL > time.Hour {
		return errors.New("TwoFactor CodeTTL must be in (0, 1h]")
	}
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("TwoFactor CodeDigits must be between 6 and 10")
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		return errors.New("TwoFactor MaxAttempts must be > 0")
	}

	// Sign-in
	if c.SignIn.LockoutEnabled {
		if c.SignIn.MaxFailures <= 0 {
			return errors.New("SignIn MaxFailures must be > 0 when lockout is enabled")
		}
		if c.SignIn.LockoutWindow <= 0 {
			return errors.New("SignIn LockoutWindow must be > 0 when lockout is enabled")
		}
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	if strings.TrimSpace(c.Mail.AppURL) == "" {
		return errors.New("Mail AppURL must be set")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
