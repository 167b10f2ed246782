package httpapi

import (
	"errors"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
}

type signInResponse struct {
	State          string     `json:"state"`
	Session        string     `json:"session,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DeliveryFailed bool       `json:"delivery_failed,omitempty"`
}

type registerResponse struct {
	UserID         string `json:"user_id"`
	DeliveryFailed bool   `json:"delivery_failed,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.Register(requestContext(r), goIdentity.RegisterInput{
		Email:    body.Email,
		Password: body.Password,
		Name:     body.Name,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := registerResponse{UserID: res.UserID}
	if res.Verification != nil && res.Verification.DeliveryErr != nil {
		out.DeliveryFailed = true
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.SignIn(requestContext(r), goIdentity.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
		Code:     body.Code,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := signInResponse{
		State:          res.State.String(),
		DeliveryFailed: res.DeliveryErr != nil,
	}
	if res.State == goIdentity.SignInAuthorized {
		h.setSessionCookie(w, res.Session, res.ExpiresAt)
		out.Session = res.Session
		out.ExpiresAt = &res.ExpiresAt
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.VerifyTwoFactor(requestContext(r), body.Email, body.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tokenBody struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

func (h *Handler) confirmEmail(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	userID, err := h.svc.ConfirmEmail(requestContext(r), body.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}

type emailBody struct {
	Email string `json:"email"`
}

// resendVerification and requestReset answer 202 whether or not a mail went
// out. A throttled request only exists for a real account, so it is hidden too.
func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.ResendVerification(requestContext(r), body.Email); err != nil && !errors.Is(err, goIdentity.ErrTokenRateLimited) {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.RequestPasswordReset(requestContext(r), body.Email); err != nil && !errors.Is(err, goIdentity.ErrTokenRateLimited) {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(requestContext(r), body.Token, body.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
