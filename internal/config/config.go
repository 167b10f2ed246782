// Package config loads the goidentity-server settings from the environment and
// an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server binary settings. Engine tunables not listed here keep
// their goIdentity.DefaultConfig values.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment. "production" disables dev fallbacks.
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory repository.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the token store address. Empty starts an embedded miniredis outside production.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SessionSigningKey is the HS256 secret (32 bytes or more). Empty generates
	// an ephemeral Ed25519 key pair outside production.
	SessionSigningKey string `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL        string `mapstructure:"SESSION_TTL"`
	// SessionRevalidate re-derives claims from the repository on every session read.
	SessionRevalidate bool `mapstructure:"SESSION_REVALIDATE"`

	// AppURL is the public base URL rendered into mailed links.
	AppURL string `mapstructure:"APP_URL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	// PasswordHasher is "argon2id" or "bcrypt".
	PasswordHasher string `mapstructure:"PASSWORD_HASHER"`
	BcryptCost     int    `mapstructure:"BCRYPT_COST"`

	// OAuthAllowEmailLinking attaches provider identities to existing users with the same email.
	OAuthAllowEmailLinking bool `mapstructure:"OAUTH_ALLOW_EMAIL_LINKING"`

	// CookieSecure marks the session and OAuth state cookies Secure.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // missing file is fine
	}

	v.AutomaticEnv()

	// AutomaticEnv only resolves keys Viper already knows, so every key gets a default.
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_SIGNING_KEY", "")
	v.SetDefault("SESSION_TTL", "15m")
	v.SetDefault("SESSION_REVALIDATE", false)
	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", "")
	v.SetDefault("PASSWORD_HASHER", "argon2id")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("OAUTH_ALLOW_EMAIL_LINKING", false)
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.PasswordHasher {
	case "argon2id", "bcrypt":
	default:
		return errors.New("config: PASSWORD_HASHER must be argon2id or bcrypt")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.SessionSigningKey != "" && len(c.SessionSigningKey) < 32 {
		return errors.New("config: SESSION_SIGNING_KEY must be at least 32 bytes")
	}
	if _, err := time.ParseDuration(c.SessionTTL); err != nil {
		return errors.New("config: SESSION_TTL must be a duration")
	}
	if c.SMTPHost != "" && c.MailFrom == "" {
		return errors.New("config: MAIL_FROM is required with SMTP_HOST")
	}
	if c.Production() {
		if c.SessionSigningKey == "" {
			return errors.New("config: SESSION_SIGNING_KEY is required in production")
		}
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required in production")
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required in production")
		}
	}
	return nil
}

// Production reports whether dev fallbacks are disabled.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionDuration parses SessionTTL. Returns 15m if unset or invalid.
func (c *Config) SessionDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}
