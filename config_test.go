package goIdentity

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "hs256 baseline",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "hs256 short key",
			mutate: func(c *Config) {
				c.Session.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "ed25519 without keys",
			mutate: func(c *Config) {
				c.Session.SigningMethod = "ed25519"
				c.Session.PrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "unknown signing method",
			mutate: func(c *Config) {
				c.Session.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "session ttl zero",
			mutate: func(c *Config) {
				c.Session.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.Session.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "blank redis prefix",
			mutate: func(c *Config) {
				c.Tokens.RedisPrefix = "  "
			},
			wantValid: false,
		},
		{
			name: "verify ttl zero",
			mutate: func(c *Config) {
				c.Tokens.EmailVerifyTTL = 0
			},
			wantValid: false,
		},
		{
			name: "resend limit without window",
			mutate: func(c *Config) {
				c.Tokens.ResendLimit = 3
				c.Tokens.ResendWindow = 0
			},
			wantValid: false,
		},
		{
			name: "resend limit disabled",
			mutate: func(c *Config) {
				c.Tokens.ResendLimit = 0
				c.Tokens.ResendWindow = 0
			},
			wantValid: true,
		},
		{
			name: "code ttl above an hour",
			mutate: func(c *Config) {
				c.TwoFactor.CodeTTL = 2 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "code digits too few",
			mutate: func(c *Config) {
				c.TwoFactor.CodeDigits = 4
			},
			wantValid: false,
		},
		{
			name: "lockout without threshold",
			mutate: func(c *Config) {
				c.SignIn.MaxFailures = 0
			},
			wantValid: false,
		},
		{
			name: "lockout disabled ignores threshold",
			mutate: func(c *Config) {
				c.SignIn.LockoutEnabled = false
				c.SignIn.MaxFailures = 0
			},
			wantValid: true,
		},
		{
			name: "missing app url",
			mutate: func(c *Config) {
				c.Mail.AppURL = ""
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config must require session keys")
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := validTestConfig()
	out := cloneConfig(cfg)
	cfg.Session.PrivateKey[0] = 'X'
	if out.Session.PrivateKey[0] == 'X' {
		t.Fatal("clone must not share key storage")
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); err == nil {
		t.Fatal("expected error without redis and repository")
	}
}
