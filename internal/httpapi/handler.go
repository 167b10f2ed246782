package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

// Service is the engine surface the handlers call.
type Service interface {
	Register(ctx context.Context, in goIdentity.RegisterInput) (*goIdentity.RegisterResult, error)
	SignIn(ctx context.Context, req goIdentity.SignInRequest) (*goIdentity.SignInResult, error)
	VerifyTwoFactor(ctx context.Context, email, code string) error
	OAuthSignIn(ctx context.Context, profile goIdentity.OAuthProfile) (*goIdentity.SignInResult, error)
	ConfirmEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (*goIdentity.TokenReceipt, error)
	RequestPasswordReset(ctx context.Context, email string) (*goIdentity.TokenReceipt, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	UpdateSettings(ctx context.Context, subjectID string, req goIdentity.SettingsRequest) (*goIdentity.SettingsResult, error)
	Session(ctx context.Context, artifact string) (goIdentity.SessionView, error)
	ReissueSession(ctx context.Context, artifact string) (string, time.Time, error)
}

// OAuthProvider is implemented by oauth.Provider.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (goIdentity.OAuthProfile, error)
}

// Options configures [New].
type Options struct {
	Providers map[string]OAuthProvider
	Logger    *slog.Logger
	// CookieName defaults to middleware.DefaultCookieName.
	CookieName string
	// SecureCookies marks every cookie Secure.
	SecureCookies bool
	// LoginRedirect is where OAuth callbacks land after authorization.
	LoginRedirect string
	// ErrorPath receives OAuth failures as ?error=<code>.
	ErrorPath string
	// NewState returns the OAuth state value.
	NewState func() (string, error)
}

// Handler serves the identity API.
type Handler struct {
	svc       Service
	providers map[string]OAuthProvider
	logger    *slog.Logger
	cookie    string
	secure    bool
	redirect  string
	errorPath string
	newState  func() (string, error)
}

func New(svc Service, opts Options) *Handler {
	h := &Handler{
		svc:       svc,
		providers: opts.Providers,
		logger:    opts.Logger,
		cookie:    opts.CookieName,
		secure:    opts.SecureCookies,
		redirect:  opts.LoginRedirect,
		errorPath: opts.ErrorPath,
		newState:  opts.NewState,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.cookie == "" {
		h.cookie = middleware.DefaultCookieName
	}
	if h.redirect == "" {
		h.redirect = middleware.DefaultRoutePolicy().DefaultLoginRedirect
	}
	if h.errorPath == "" {
		h.errorPath = "/auth/error"
	}
	if h.providers == nil {
		h.providers = map[string]OAuthProvider{}
	}
	return h
}

// Routes registers every endpoint on a new ServeMux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/sign-in", h.signIn)
	mux.HandleFunc("POST /api/auth/two-factor", h.verifyTwoFactor)
	mux.HandleFunc("POST /api/auth/verify-email", h.confirmEmail)
	mux.HandleFunc("POST /api/auth/resend-verification", h.resendVerification)
	mux.HandleFunc("POST /api/auth/reset", h.requestReset)
	mux.HandleFunc("POST /api/auth/new-password", h.resetPassword)
	mux.HandleFunc("GET /api/auth/session", h.session)
	mux.HandleFunc("POST /api/auth/session/reissue", h.reissue)
	mux.HandleFunc("POST /api/auth/sign-out", h.signOut)
	mux.HandleFunc("GET /api/auth/oauth/{provider}", h.oauthStart)
	mux.HandleFunc("GET /api/auth/oauth/{provider}/callback", h.oauthCallback)

	requireSession := middleware.RequireSession(h.svc, h.cookie)
	mux.Handle("PATCH /api/settings", requireSession(http.HandlerFunc(h.updateSettings)))
	mux.Handle("GET /api/admin", requireSession(middleware.RequireRole(goIdentity.RoleAdmin)(http.HandlerFunc(h.admin))))

	return mux
}

// statusFor maps engine errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goIdentity.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, goIdentity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, goIdentity.ErrIncorrectPassword):
		return http.StatusUnprocessableEntity, "incorrect_password"
	case errors.Is(err, goIdentity.ErrUnauthorized), errors.Is(err, goIdentity.ErrSessionInvalid):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, goIdentity.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, goIdentity.ErrEmailInUse):
		return http.StatusConflict, "email_in_use"
	case errors.Is(err, goIdentity.ErrOAuthAccountNotLinked):
		return http.StatusConflict, "oauth_account_not_linked"
	case errors.Is(err, goIdentity.ErrTokenNotFound):
		return http.StatusBadRequest, "token_not_found"
	case errors.Is(err, goIdentity.ErrTokenExpired):
		return http.StatusGone, "token_expired"
	case errors.Is(err, goIdentity.ErrTokenAttemptsExceeded):
		return http.StatusBadRequest, "token_attempts_exceeded"
	case errors.Is(err, goIdentity.ErrTokenRateLimited), errors.Is(err, goIdentity.ErrSignInRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, goIdentity.ErrStoreUnavailable), errors.Is(err, goIdentity.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "identity request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, errorBody{Error: code})
}
