package goIdentity

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. It is single use: configure it during
// initialization, call Build once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	repo      IdentityRepository
	hasher    CredentialHasher
	mailer    MailSender
	logger    *slog.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing tokens and throttles. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityRepository sets the user/account store. Required.
func (b *Builder) WithIdentityRepository(repo IdentityRepository) *Builder {
	b.repo = repo
	return b
}

// WithHasher overrides the default bcrypt hasher.
func (b *Builder) WithHasher(h CredentialHasher) *Builder {
	b.hasher = h
	return b
}

// WithMailSender sets the notification transport. Without one, messages
// are logged (headers only) and never delivered.
func (b *Builder) WithMailSender(m MailSender) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for token expiry and session signing.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every collaborator.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.repo == nil {
		return nil, errors.New("identity repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config: cfg,
		repo:   b.repo,
		logger: logger,
		clock:  b.clock,
	}

	engine.hasher = b.hasher
	if engine.hasher == nil {
		h, err := password.NewBcrypt(password.DefaultBcryptCost)
		if err != nil {
			return nil, err
		}
		engine.hasher = h
	}

	engine.mailer = b.mailer
	if engine.mailer == nil {
		engine.mailer = &mail.LogSender{Logger: logger}
	}

	engine.tokens = stores.NewTokenStore(b.redis, cfg.Tokens.RedisPrefix, cfg.Tokens.ExpiredRetention)
	engine.issueLimiter = limiters.NewTokenIssueLimiter(b.redis, cfg.Tokens.RedisPrefix, limiters.TokenIssueConfig{
		Max:    cfg.Tokens.ResendLimit,
		Window: cfg.Tokens.ResendWindow,
	})
	engine.signInLimiter = limiters.NewSignInLimiter(b.redis, cfg.Tokens.RedisPrefix, limiters.SignInConfig{
		Enabled:     cfg.SignIn.LockoutEnabled,
		MaxFailures: cfg.SignIn.MaxFailures,
		Window:      cfg.SignIn.LockoutWindow,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		Now:           engine.now,
	})
	if err != nil {
		if engine.audit != nil {
			engine.audit.Close()
		}
		return nil, err
	}
	engine.sessions = jm

	b.built = true

	return engine, nil
}
