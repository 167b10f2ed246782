package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// DefaultCookieName is the cookie that carries the session artifact.
const DefaultCookieName = "goidentity_session"

// SessionReader validates a session artifact.
type SessionReader interface {
	Session(ctx context.Context, artifact string) (goIdentity.SessionView, error)
}

// RoutePolicy classifies request paths for [Gate].
type RoutePolicy struct {
	// APIAuthPrefix marks sign-in API endpoints; they always pass.
	APIAuthPrefix string
	// AuthRoutes are sign-in pages; signed-in users are sent to DefaultLoginRedirect.
	AuthRoutes []string
	// PublicRoutes pass with or without a session.
	PublicRoutes []string
	// DefaultLoginRedirect is where signed-in users land.
	DefaultLoginRedirect string
	// LoginPath is where anonymous users are sent from protected routes.
	LoginPath  string
	CookieName string
}

// DefaultRoutePolicy returns the stock layout of the auth pages.
func DefaultRoutePolicy() RoutePolicy {
	return RoutePolicy{
		APIAuthPrefix: "/api/auth",
		AuthRoutes: []string{
			"/auth/login",
			"/auth/register",
			"/auth/error",
			"/auth/reset",
			"/auth/new-password",
		},
		PublicRoutes:         []string{"/", "/auth/new-verification"},
		DefaultLoginRedirect: "/settings",
		LoginPath:            "/auth/login",
		CookieName:           DefaultCookieName,
	}
}

type sessionContextKey struct{}

// SessionFromContext returns the view stored by a gate.
func SessionFromContext(ctx context.Context) (goIdentity.SessionView, bool) {
	view, ok := ctx.Value(sessionContextKey{}).(goIdentity.SessionView)
	return view, ok
}

// WithSession stores view in ctx the way the gates do.
func WithSession(ctx context.Context, view goIdentity.SessionView) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, view)
}

// Gate applies policy to every request.
func Gate(sessions SessionReader, policy RoutePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if policy.APIAuthPrefix != "" && strings.HasPrefix(path, policy.APIAuthPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			view, loggedIn := authenticate(r, sessions, policy.CookieName)
			if loggedIn {
				r = r.WithContext(WithSession(r.Context(), view))
			}

			if slices.Contains(policy.AuthRoutes, path) {
				if loggedIn {
					http.Redirect(w, r, policy.DefaultLoginRedirect, http.StatusFound)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !loggedIn && !slices.Contains(policy.PublicRoutes, path) {
				http.Redirect(w, r, policy.LoginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests without a valid session artifact.
func RequireSession(sessions SessionReader, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view, ok := authenticate(r, sessions, cookieName)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), view)))
		})
	}
}

// RequireRole must run behind a gate that stored the session.
func RequireRole(role goIdentity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view, _ := SessionFromContext(r.Context())
			err := goIdentity.RequireRole(view, role)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, goIdentity.ErrForbidden):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}
		})
	}
}

func authenticate(r *http.Request, sessions SessionReader, cookieName string) (goIdentity.SessionView, bool) {
	if sessions == nil {
		return goIdentity.SessionView{}, false
	}
	artifact, ok := ArtifactFromRequest(r, cookieName)
	if !ok {
		return goIdentity.SessionView{}, false
	}
	view, err := sessions.Session(r.Context(), artifact)
	if err != nil {
		return goIdentity.SessionView{}, false
	}
	return view, true
}

// ArtifactFromRequest reads the session artifact from the Authorization
// header, falling back to the cookie.
func ArtifactFromRequest(r *http.Request, cookieName string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
