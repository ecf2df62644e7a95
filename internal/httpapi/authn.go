package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/auth/introspect",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/openapi.yaml",
	"/",
}

// publicPost holds paths that skip authentication for POST only.
// Self-registration is open; listing users is not.
var publicPost = []string{
	"/v1/users",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.svc == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path, r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, _, err := a.svc.AuthenticateToken(r.Context(), token)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureRole authorizes the caller against the directory's current
// role assignments, not the token's embedded scope.
func (a *API) ensureRole(w http.ResponseWriter, r *http.Request, role string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return false
	}
	decision, err := a.engine.Authorize(r.Context(), role, principal.User.ID)
	if err != nil {
		writeAuthError(w, r, err)
		return false
	}
	if !decision.Allowed() {
		_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
			"required_role": role,
			"reason":        decision.Reason(),
		})
		writeAuthError(w, r, auth.ErrForbidden)
		return false
	}
	return true
}

// ensureSelfOrRole allows the resource owner through and otherwise
// falls back to a role check. The ownership comparison runs after the
// caller is identified, never on token contents alone.
func (a *API) ensureSelfOrRole(w http.ResponseWriter, r *http.Request, ownerID, role string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return false
	}
	if auth.OwnsResult(ownerID, principal.User.ID) {
		return true
	}
	return a.ensureRole(w, r, role)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path, method string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	if method == http.MethodPost {
		for _, p := range publicPost {
			if path == p {
				return true
			}
		}
	}
	return false
}
