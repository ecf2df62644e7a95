package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Well-known role names seeded at bootstrap.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

var (
	// ErrConflict reports a duplicate username, role or permission.
	ErrConflict = errors.New("auth: already exists")
	// ErrNotFound reports a missing role or permission.
	ErrNotFound = errors.New("auth: not found")
	// ErrInvalidInput reports a request that failed validation.
	ErrInvalidInput = errors.New("auth: invalid input")
)

const (
	minUsernameLen = 4
	minPasswordLen = 8
	minAgeYears    = 18
)

// AdminStore extends the read-only Directory with the mutations the
// management API needs.
type AdminStore interface {
	Directory
	CreateUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, userID string) error
	AssignRole(ctx context.Context, userID, roleName string) error
	CreateRole(ctx context.Context, role *Role) error
	ListRoles(ctx context.Context) ([]Role, error)
	SetRolePermissions(ctx context.Context, roleName string, permissions []string) error
	DeleteRole(ctx context.Context, roleName string) error
	CreatePermission(ctx context.Context, perm *Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, name string) error
}

// UserUpdate carries optional field changes for the store; nil keeps
// the current value. Roles, when non-nil, replaces the assignment set.
type UserUpdate struct {
	PasswordHash *string
	FirstName    *string
	LastName     *string
	DateOfBirth  *time.Time
	Roles        []string
}

// UserRegistration is the public self-registration request.
type UserRegistration struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// UserMutation is the admin-side update request. The plaintext
// password, when set, is hashed before it reaches the store.
type UserMutation struct {
	Password    *string    `json:"password"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Roles       []string   `json:"roles"`
}

// DirectoryService validates and executes directory mutations. The
// authentication core only reads through the Directory interface; this
// service is the write side used by the management API.
type DirectoryService struct {
	store AdminStore
	now   func() time.Time
}

// DirectoryOption configures a DirectoryService.
type DirectoryOption func(*DirectoryService)

// DirectoryWithClock overrides the time source, for tests.
func DirectoryWithClock(fn func() time.Time) DirectoryOption {
	return func(s *DirectoryService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewDirectoryService constructs the directory write service.
func NewDirectoryService(store AdminStore, opts ...DirectoryOption) (*DirectoryService, error) {
	if store == nil {
		return nil, errors.New("auth: admin store is required")
	}
	s := &DirectoryService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterUser creates a principal with the default USER role.
func (s *DirectoryService) RegisterUser(ctx context.Context, req UserRegistration) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < minUsernameLen {
		return nil, fmt.Errorf("%w: username must be at least %d characters", ErrInvalidInput, minUsernameLen)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if req.DateOfBirth != nil && !s.oldEnough(*req.DateOfBirth) {
		return nil, fmt.Errorf("%w: age must be at least %d", ErrInvalidInput, minAgeYears)
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DateOfBirth:  req.DateOfBirth,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	// USER is seeded at bootstrap; a missing assignment here is a
	// deployment problem, not a registration failure.
	if err := s.store.AssignRole(ctx, user.ID, RoleUser); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads a principal by id.
func (s *DirectoryService) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.store.FindByID(ctx, userID)
}

// GetUserByUsername loads a principal by username.
func (s *DirectoryService) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.store.FindByUsername(ctx, username)
}

// ListUsers returns all principals.
func (s *DirectoryService) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

// RolesOf returns the user's current roles.
func (s *DirectoryService) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	return s.store.RolesOf(ctx, userID)
}

// UpdateUser applies an admin mutation.
func (s *DirectoryService) UpdateUser(ctx context.Context, userID string, req UserMutation) (*User, error) {
	upd := UserUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Roles:       req.Roles,
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
		}
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}
	if req.DateOfBirth != nil && !s.oldEnough(*req.DateOfBirth) {
		return nil, fmt.Errorf("%w: age must be at least %d", ErrInvalidInput, minAgeYears)
	}
	return s.store.UpdateUser(ctx, userID, upd)
}

// DeleteUser removes a principal. Outstanding tokens keep working
// until expiry unless explicitly revoked; role checks already fail
// because the directory lookup does.
func (s *DirectoryService) DeleteUser(ctx context.Context, userID string) error {
	return s.store.DeleteUser(ctx, userID)
}

// CreateRole adds a role with an optional permission set.
func (s *DirectoryService) CreateRole(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description)}
	for _, p := range permissions {
		if p = strings.TrimSpace(p); p != "" {
			role.Permissions = append(role.Permissions, Permission{Name: p})
		}
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns every role with its permissions.
func (s *DirectoryService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// SetRolePermissions replaces a role's permission set.
func (s *DirectoryService) SetRolePermissions(ctx context.Context, roleName string, permissions []string) error {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.SetRolePermissions(ctx, roleName, permissions)
}

// DeleteRole removes a role and its assignments.
func (s *DirectoryService) DeleteRole(ctx context.Context, name string) error {
	return s.store.DeleteRole(ctx, name)
}

// CreatePermission adds a capability to the catalog.
func (s *DirectoryService) CreatePermission(ctx context.Context, name, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm := &Permission{Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// ListPermissions returns the permission catalog.
func (s *DirectoryService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// DeletePermission removes a capability and its role links.
func (s *DirectoryService) DeletePermission(ctx context.Context, name string) error {
	return s.store.DeletePermission(ctx, name)
}

// EnsureBootstrap seeds the built-in roles and the admin account on
// first start. Idempotent: conflicts from previous runs are ignored.
func (s *DirectoryService) EnsureBootstrap(ctx context.Context, adminUsername, adminPassword string) (created bool, err error) {
	for _, role := range []Role{
		{Name: RoleAdmin, Description: "full administrative access"},
		{Name: RoleUser, Description: "default role for registered users"},
	} {
		r := role
		if err := s.store.CreateRole(ctx, &r); err != nil && !errors.Is(err, ErrConflict) {
			return false, err
		}
	}

	if _, err := s.store.FindByUsername(ctx, adminUsername); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		return false, err
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return false, err
	}
	admin := &User{Username: adminUsername, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with another instance; fine.
			return false, nil
		}
		return false, err
	}
	if err := s.store.AssignRole(ctx, admin.ID, RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DirectoryService) oldEnough(dob time.Time) bool {
	return !dob.After(s.now().AddDate(-minAgeYears, 0, 0))
}
