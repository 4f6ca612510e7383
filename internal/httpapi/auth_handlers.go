package httpapi

import (
	"errors"
	"net/http"
	"time"

	"ayrene.com/backoffice/internal/audit"
	"ayrene.com/backoffice/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges email and password for a bearer token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Email and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"email":     req.Email,
			"remote_ip": a.proxies.ClientIP(r),
		})
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		internalError(w, r, err, "Login failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user_id":    res.UserID,
		"role":       res.Role,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, res)
}

// Me returns the caller's identity as resolved by the auth gate.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identity(r))
}
