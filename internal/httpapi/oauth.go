package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

const (
	stateCookieName = "goidentity_oauth_state"
	stateTTL        = 10 * time.Minute
)

func (h *Handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok || h.newState == nil {
		http.NotFound(w, r)
		return
	}

	state, err := h.newState()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth/oauth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	stored, err := r.Cookie(stateCookieName)
	if err != nil || stored.Value == "" || subtle.ConstantTimeCompare([]byte(stored.Value), []byte(q.Get("state"))) != 1 {
		h.oauthError(w, r, "state_mismatch")
		return
	}
	h.clearCookie(w, stateCookieName)

	if q.Get("error") != "" {
		h.oauthError(w, r, "access_denied")
		return
	}

	ctx := requestContext(r)
	profile, err := provider.Exchange(ctx, q.Get("code"))
	if err != nil {
		h.logger.WarnContext(ctx, "oauth exchange failed",
			"provider", provider.Name(),
			"error", err.Error(),
		)
		h.oauthError(w, r, "exchange_failed")
		return
	}

	res, err := h.svc.OAuthSignIn(ctx, profile)
	if err != nil {
		if errors.Is(err, goIdentity.ErrOAuthAccountNotLinked) {
			h.oauthError(w, r, "OAuthAccountNotLinked")
			return
		}
		_, code := statusFor(err)
		h.oauthError(w, r, code)
		return
	}

	h.setSessionCookie(w, res.Session, res.ExpiresAt)
	http.Redirect(w, r, h.redirect, http.StatusFound)
}

func (h *Handler) oauthError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.errorPath+"?error="+url.QueryEscape(code), http.StatusFound)
}
