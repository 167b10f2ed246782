package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a single JSON object and rejects unknown fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return goIdentity.ErrInvalidInput
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return goIdentity.ErrInvalidInput
	}
	return nil
}

// requestContext attaches client metadata carried into audit events.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = goIdentity.WithClientIP(ctx, host)
	ctx = goIdentity.WithUserAgent(ctx, r.UserAgent())
	return ctx
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, artifact string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    artifact,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
