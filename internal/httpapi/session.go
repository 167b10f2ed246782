package httpapi

import (
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

type sessionResponse struct {
	ID                 string          `json:"id"`
	Role               goIdentity.Role `json:"role"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	IsOAuth            bool            `json:"is_oauth"`
	IsTwoFactorEnabled bool            `json:"is_two_factor_enabled"`
	ExpiresAt          time.Time       `json:"expires_at"`
}

func toSessionResponse(v goIdentity.SessionView) sessionResponse {
	return sessionResponse{
		ID:                 v.ID,
		Role:               v.Role,
		Name:               v.Name,
		Email:              v.Email,
		IsOAuth:            v.IsOAuth,
		IsTwoFactorEnabled: v.IsTwoFactorEnabled,
		ExpiresAt:          v.ExpiresAt,
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	artifact, ok := middleware.ArtifactFromRequest(r, h.cookie)
	if !ok {
		h.fail(w, r, goIdentity.ErrUnauthorized)
		return
	}
	view, err := h.svc.Session(requestContext(r), artifact)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(view))
}

func (h *Handler) reissue(w http.ResponseWriter, r *http.Request) {
	artifact, ok := middleware.ArtifactFromRequest(r, h.cookie)
	if !ok {
		h.fail(w, r, goIdentity.ErrUnauthorized)
		return
	}
	fresh, expiresAt, err := h.svc.ReissueSession(requestContext(r), artifact)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, fresh, expiresAt)
	writeJSON(w, http.StatusOK, signInResponse{
		State:     goIdentity.SignInAuthorized.String(),
		Session:   fresh,
		ExpiresAt: &expiresAt,
	})
}

// signOut only drops the cookie; artifacts are stateless and expire on their own.
func (h *Handler) signOut(w http.ResponseWriter, _ *http.Request) {
	h.clearCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

type settingsBody struct {
	Name               *string          `json:"name"`
	Email              *string          `json:"email"`
	Password           *string          `json:"password"`
	NewPassword        *string          `json:"new_password"`
	IsTwoFactorEnabled *bool            `json:"is_two_factor_enabled"`
	Role               *goIdentity.Role `json:"role"`
}

type settingsResponse struct {
	Fields         map[string]string `json:"fields"`
	DeliveryFailed bool              `json:"delivery_failed,omitempty"`
	Session        string            `json:"session,omitempty"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	view, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.fail(w, r, goIdentity.ErrUnauthorized)
		return
	}

	var body settingsBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx := requestContext(r)
	res, err := h.svc.UpdateSettings(ctx, view.ID, goIdentity.SettingsRequest{
		Name:               body.Name,
		Email:              body.Email,
		Password:           body.Password,
		NewPassword:        body.NewPassword,
		IsTwoFactorEnabled: body.IsTwoFactorEnabled,
		Role:               body.Role,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := settingsResponse{
		Fields:         make(map[string]string, 5),
		DeliveryFailed: res.DeliveryErr != nil,
	}
	for name, status := range map[string]goIdentity.FieldStatus{
		"email":                 res.Email,
		"password":              res.Password,
		"name":                  res.Name,
		"is_two_factor_enabled": res.TwoFactor,
		"role":                  res.Role,
	} {
		if status != goIdentity.FieldNotRequested {
			out.Fields[name] = status.String()
		}
	}

	// Applied fields only reach the artifact through a reissue.
	if anyApplied(res) {
		if artifact, ok := middleware.ArtifactFromRequest(r, h.cookie); ok {
			fresh, expiresAt, err := h.svc.ReissueSession(ctx, artifact)
			if err == nil {
				h.setSessionCookie(w, fresh, expiresAt)
				out.Session = fresh
			} else {
				h.logger.WarnContext(ctx, "session reissue after settings update failed",
					"user_id", view.ID,
					"error", err.Error(),
				)
			}
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func anyApplied(res *goIdentity.SettingsResult) bool {
	for _, s := range []goIdentity.FieldStatus{res.Name, res.Password, res.TwoFactor, res.Role} {
		if s == goIdentity.FieldApplied {
			return true
		}
	}
	return false
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	view, _ := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"user_id": view.ID, "role": string(view.Role)})
}
