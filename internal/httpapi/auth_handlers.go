package httpapi

import (
	"net/http"
	"strings"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	Authenticated bool      `json:"authenticated"`
}

type introspectResponse struct {
	Valid bool `json:"valid"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, r, http.StatusBadRequest, "username is required")
		return
	}

	session, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin("failure")
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"username": req.Username,
		})
		writeAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"username":   req.Username,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:         session.Token,
		ExpiresAt:     session.ExpiresAt,
		Authenticated: session.Authenticated,
	})
}

func (a *API) handleAuthIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Introspect(r.Context(), req.Token)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	obs.ObserveIntrospection(result.Valid)
	writeJSON(w, http.StatusOK, introspectResponse{Valid: result.Valid})
}

func (a *API) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.svc.Refresh(r.Context(), req.Token)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	obs.ObserveRevocation("refresh")
	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", map[string]any{
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:         session.Token,
		ExpiresAt:     session.ExpiresAt,
		Authenticated: session.Authenticated,
	})
}

func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.svc.Logout(r.Context(), req.Token); err != nil {
		writeAuthError(w, r, err)
		return
	}

	obs.ObserveRevocation("logout")
	_ = audit.LogEvent(r.Context(), "auth.token.revoked", nil)
	w.WriteHeader(http.StatusNoContent)
}
