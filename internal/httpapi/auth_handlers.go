package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskflow.dev/internal/account"
	"taskflow.dev/internal/audit"
	"taskflow.dev/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Message      string                `json:"message"`
	User         account.View          `json:"user"`
	Organization *account.Organization `json:"organization"`
	Token        string                `json:"token"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

func newSessionResponse(msg string, sess *auth.Session) sessionResponse {
	return sessionResponse{
		Message:      msg,
		User:         sess.User.View(),
		Organization: sess.Organization,
		Token:        sess.Token,
		ExpiresAt:    sess.ExpiresAt,
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sess, err := a.opts.Auth.Register(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	audit.Record(r.Context(), "auth.register",
		zap.String("user_id", sess.User.ID),
		zap.String("org_id", sess.User.OrganizationID))
	writeJSON(w, http.StatusCreated, newSessionResponse("Organization created successfully", sess))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sess, err := a.opts.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			audit.Record(r.Context(), "auth.login.failed", zap.String("remote_ip", clientIP(r)))
		}
		a.fail(w, r, err)
		return
	}
	audit.Record(r.Context(), "auth.login", zap.String("user_id", sess.User.ID))
	writeJSON(w, http.StatusOK, newSessionResponse("Login successful", sess))
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	u, org, err := a.opts.Auth.Profile(r.Context(), identity(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         u.View(),
		"organization": org,
	})
}
