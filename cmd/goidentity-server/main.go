// Command goidentity-server serves the identity API over HTTP.
//
// Run with no environment for a self-contained development server: an
// embedded miniredis, the in-memory repository, a log-only mail sender and an
// ephemeral signing key.
//
//	go run ./cmd/goidentity-server
//
//	curl -i -X POST localhost:8080/api/auth/register \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"ada@example.com","password":"correct-horse","name":"Ada"}'
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/config"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/memory"
	otelexport "github.com/MrEthical07/goIdentity/metrics/export/otel"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goidentity-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	hasher, err := newHasher(cfg)
	if err != nil {
		return err
	}

	sender, err := newMailSender(cfg, logger)
	if err != nil {
		return err
	}

	// ---------- engine ----------
	engineCfg, err := engineConfig(cfg, logger)
	if err != nil {
		return err
	}

	engine, err := goIdentity.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithIdentityRepository(repo).
		WithHasher(hasher).
		WithMailSender(sender).
		WithLogger(logger).
		WithAuditSink(goIdentity.NewSlogSink(logger.With("component", "audit"))).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("engine build: %w", err)
	}
	defer engine.Close()

	// ---------- metrics ----------
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	otelExporter, err := otelexport.NewOTelExporter(meterProvider.Meter("github.com/MrEthical07/goIdentity"), engine)
	if err != nil {
		return fmt.Errorf("otel exporter: %w", err)
	}
	defer func() { _ = otelExporter.Close() }()

	// ---------- routes ----------
	providers, err := oauth.LoadProvidersFromEnv()
	if err != nil {
		return err
	}
	api := httpapi.New(engine, httpapi.Options{
		Providers:     toAPIProviders(providers),
		Logger:        logger,
		SecureCookies: cfg.CookieSecure,
		NewState:      oauth.NewState,
	})

	mux := api.Routes()
	mux.Handle("GET /metrics", promexport.NewPrometheusExporter(engine).Handler())
	mux.Handle("GET /debug/otel", otelHandler(reader))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	policy := middleware.DefaultRoutePolicy()
	policy.PublicRoutes = append(policy.PublicRoutes, "/metrics", "/healthz", "/debug/otel")

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.Gate(engine, policy)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "oauth_providers", len(providers))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("REDIS_ADDR not set, using embedded miniredis", "addr", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return client, cleanup, nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (goIdentity.IdentityRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return postgres.NewRepository(db), func() { _ = db.Close() }, nil
}

// newHasher verifies both schemes so a hasher switch keeps old credentials valid.
func newHasher(cfg *config.Config) (goIdentity.CredentialHasher, error) {
	argon, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("argon2 init: %w", err)
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt init: %w", err)
	}

	multi := &password.Multi{Primary: argon, Argon2: argon, Bcrypt: bc}
	if cfg.PasswordHasher == "bcrypt" {
		multi.Primary = bc
	}
	return multi, nil
}

func newMailSender(cfg *config.Config, logger *slog.Logger) (goIdentity.MailSender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, mail is logged instead of delivered")
		return &mail.LogSender{Logger: logger, IncludeBody: !cfg.Production()}, nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

func engineConfig(cfg *config.Config, logger *slog.Logger) (goIdentity.Config, error) {
	out := goIdentity.DefaultConfig()
	out.Session.TTL = cfg.SessionDuration()
	out.Session.RevalidateOnRead = cfg.SessionRevalidate
	out.OAuth.AllowEmailLinking = cfg.OAuthAllowEmailLinking
	out.Mail.AppURL = cfg.AppURL
	out.Audit.Enabled = true

	if cfg.SessionSigningKey != "" {
		out.Session.SigningMethod = "hs256"
		out.Session.PrivateKey = []byte(cfg.SessionSigningKey)
		return out, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return goIdentity.Config{}, fmt.Errorf("generate session key: %w", err)
	}
	logger.Warn("SESSION_SIGNING_KEY not set, sessions will not survive a restart")
	out.Session.SigningMethod = "ed25519"
	out.Session.PrivateKey = priv
	out.Session.PublicKey = pub
	return out, nil
}

func toAPIProviders(in map[string]*oauth.Provider) map[string]httpapi.OAuthProvider {
	out := make(map[string]httpapi.OAuthProvider, len(in))
	for name, p := range in {
		out[name] = p
	}
	return out
}

// otelHandler collects the manual reader and dumps the result as JSON.
func otelHandler(reader *sdkmetric.ManualReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(r.Context(), &rm); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rm.ScopeMetrics)
	})
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
