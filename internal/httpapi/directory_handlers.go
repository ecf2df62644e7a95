package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type userResponse struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	FirstName   string      `json:"first_name,omitempty"`
	LastName    string      `json:"last_name,omitempty"`
	DateOfBirth *time.Time  `json:"date_of_birth,omitempty"`
	Roles       []auth.Role `json:"roles,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func toUserResponse(u *auth.User, roles []auth.Role) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DateOfBirth: u.DateOfBirth,
		Roles:       roles,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// handleUsers serves POST (open self-registration) and GET (admin
// listing) on /v1/users.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleUserCreate(w, r)
	case http.MethodGet:
		a.handleUserList(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req auth.UserRegistration
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.directory.RegisterUser(r.Context(), req)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.user.created", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, toUserResponse(user, nil))
}

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}
	users, err := a.directory.ListUsers(r.Context())
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUserResource serves /v1/users/{id} and /v1/users/me.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id == "me" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.handleUserMe(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensureSelfOrRole(w, r, id, auth.RoleAdmin) {
			return
		}
		a.writeUserWithRoles(w, r, id)
	case http.MethodPut:
		if !a.ensureSelfOrRole(w, r, id, auth.RoleAdmin) {
			return
		}
		a.handleUserUpdate(w, r, id)
	case http.MethodDelete:
		if !a.ensureRole(w, r, auth.RoleAdmin) {
			return
		}
		a.handleUserDelete(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(principal.User, principal.Roles))
}

func (a *API) writeUserWithRoles(w http.ResponseWriter, r *http.Request, id string) {
	user, err := a.directory.GetUser(r.Context(), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	roles, err := a.directory.RolesOf(r.Context(), id)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user, roles))
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req auth.UserMutation
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Only admins may change role assignments, even on their own
	// account.
	if req.Roles != nil && !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}
	user, err := a.directory.UpdateUser(r.Context(), id, req)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.user.updated", map[string]any{
		"user_id": id,
	})
	writeJSON(w, http.StatusOK, toUserResponse(user, nil))
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.directory.DeleteUser(r.Context(), id); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.user.deleted", map[string]any{
		"user_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleRoles serves POST and GET on /v1/roles, admin only.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.directory.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.created", map[string]any{
			"role": role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.Name))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		roles, err := a.directory.ListRoles(r.Context())
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if roles == nil {
			roles = []auth.Role{}
		}
		writeJSON(w, http.StatusOK, roles)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleRoleResource serves DELETE /v1/roles/{name} and
// PUT /v1/roles/{name}/permissions, admin only.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.directory.DeleteRole(r.Context(), parts[0]); err != nil {
			writeAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.deleted", map[string]any{
			"role": parts[0],
		})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req setRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.directory.SetRolePermissions(r.Context(), parts[0], req.Permissions); err != nil {
			writeAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.permissions.updated", map[string]any{
			"role":  parts[0],
			"count": len(req.Permissions),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handlePermissions serves POST and GET on /v1/permissions, admin only.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.directory.CreatePermission(r.Context(), req.Name, req.Description)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.permission.created", map[string]any{
			"permission": perm.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.Name))
		writeJSON(w, http.StatusCreated, perm)
	case http.MethodGet:
		perms, err := a.directory.ListPermissions(r.Context())
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if perms == nil {
			perms = []auth.Permission{}
		}
		writeJSON(w, http.StatusOK, perms)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handlePermissionResource serves DELETE /v1/permissions/{name}.
func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensureRole(w, r, auth.RoleAdmin) {
		return
	}
	if err := a.directory.DeletePermission(r.Context(), name); err != nil {
		writeAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.permission.deleted", map[string]any{
		"permission": name,
	})
	w.WriteHeader(http.StatusNoContent)
}
