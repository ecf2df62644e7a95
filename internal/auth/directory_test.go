package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// memoryAdminStore is an in-process AdminStore fake keyed by user id.
type memoryAdminStore struct {
	nextID int
	users  map[string]*User
	roles  map[string]*Role
	perms  map[string]*Permission
	// role names assigned per user id
	assignments map[string][]string
}

func newMemoryAdminStore() *memoryAdminStore {
	return &memoryAdminStore{
		users:       map[string]*User{},
		roles:       map[string]*Role{},
		perms:       map[string]*Permission{},
		assignments: map[string][]string{},
	}
}

func (m *memoryAdminStore) FindByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (m *memoryAdminStore) FindByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return u, nil
}

func (m *memoryAdminStore) RolesOf(_ context.Context, userID string) ([]Role, error) {
	var out []Role
	for _, name := range m.assignments[userID] {
		if r, ok := m.roles[name]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryAdminStore) CreateUser(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrConflict
		}
	}
	m.nextID++
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%03d", m.nextID)
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return nil
}

func (m *memoryAdminStore) ListUsers(context.Context) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryAdminStore) UpdateUser(_ context.Context, userID string, upd UserUpdate) (*User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.DateOfBirth != nil {
		u.DateOfBirth = upd.DateOfBirth
	}
	if upd.Roles != nil {
		m.assignments[userID] = append([]string(nil), upd.Roles...)
	}
	return u, nil
}

func (m *memoryAdminStore) DeleteUser(_ context.Context, userID string) error {
	if _, ok := m.users[userID]; !ok {
		return ErrPrincipalNotFound
	}
	delete(m.users, userID)
	delete(m.assignments, userID)
	return nil
}

func (m *memoryAdminStore) AssignRole(_ context.Context, userID, roleName string) error {
	if _, ok := m.roles[roleName]; !ok {
		return errors.New("unknown role")
	}
	for _, have := range m.assignments[userID] {
		if have == roleName {
			return nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleName)
	return nil
}

func (m *memoryAdminStore) CreateRole(_ context.Context, role *Role) error {
	if _, ok := m.roles[role.Name]; ok {
		return ErrConflict
	}
	m.roles[role.Name] = role
	return nil
}

func (m *memoryAdminStore) ListRoles(context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memoryAdminStore) SetRolePermissions(_ context.Context, roleName string, permissions []string) error {
	r, ok := m.roles[roleName]
	if !ok {
		return ErrNotFound
	}
	r.Permissions = nil
	for _, p := range permissions {
		r.Permissions = append(r.Permissions, Permission{Name: p})
	}
	return nil
}

func (m *memoryAdminStore) DeleteRole(_ context.Context, name string) error {
	if _, ok := m.roles[name]; !ok {
		return ErrNotFound
	}
	delete(m.roles, name)
	return nil
}

func (m *memoryAdminStore) CreatePermission(_ context.Context, perm *Permission) error {
	if _, ok := m.perms[perm.Name]; ok {
		return ErrConflict
	}
	m.perms[perm.Name] = perm
	return nil
}

func (m *memoryAdminStore) ListPermissions(context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range m.perms {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryAdminStore) DeletePermission(_ context.Context, name string) error {
	if _, ok := m.perms[name]; !ok {
		return ErrNotFound
	}
	delete(m.perms, name)
	return nil
}

func newDirectoryFixture(t *testing.T) (*DirectoryService, *memoryAdminStore, *fakeClock) {
	t.Helper()
	store := newMemoryAdminStore()
	clock := newFakeClock()
	svc, err := NewDirectoryService(store, DirectoryWithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewDirectoryService: %v", err)
	}
	if _, err := svc.CreateRole(context.Background(), RoleUser, "default role", nil); err != nil {
		t.Fatalf("seed USER role: %v", err)
	}
	return svc, store, clock
}

func TestRegisterUserAssignsDefaultRole(t *testing.T) {
	svc, store, clock := newDirectoryFixture(t)
	dob := clock.Now().AddDate(-30, 0, 0)

	u, err := svc.RegisterUser(context.Background(), UserRegistration{
		Username:    "wanderer",
		Password:    "long-enough",
		FirstName:   "Wan",
		LastName:    "Derer",
		DateOfBirth: &dob,
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if u.PasswordHash == "long-enough" {
		t.Fatal("password stored in plaintext")
	}
	roles, err := store.RolesOf(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RolesOf: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != RoleUser {
		t.Fatalf("expected default %s role, got %+v", RoleUser, roles)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	svc, _, clock := newDirectoryFixture(t)
	tooYoung := clock.Now().AddDate(-17, 0, 0)

	cases := []struct {
		name string
		req  UserRegistration
	}{
		{"short username", UserRegistration{Username: "abc", Password: "long-enough"}},
		{"short password", UserRegistration{Username: "wanderer", Password: "short"}},
		{"underage", UserRegistration{Username: "wanderer", Password: "long-enough", DateOfBirth: &tooYoung}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RegisterUser(context.Background(), tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegisterUserDuplicateUsername(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t)
	req := UserRegistration{Username: "wanderer", Password: "long-enough"}

	if _, err := svc.RegisterUser(context.Background(), req); err != nil {
		t.Fatalf("first RegisterUser: %v", err)
	}
	if _, err := svc.RegisterUser(context.Background(), req); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t)
	u, err := svc.RegisterUser(context.Background(), UserRegistration{Username: "wanderer", Password: "long-enough"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	next := "even-longer-secret"
	updated, err := svc.UpdateUser(context.Background(), u.ID, UserMutation{Password: &next})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := VerifyPassword(updated.PasswordHash, next); err != nil {
		t.Fatalf("new password does not verify: %v", err)
	}

	short := "nope"
	if _, err := svc.UpdateUser(context.Background(), u.ID, UserMutation{Password: &short}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestUpdateUserReplacesRoles(t *testing.T) {
	svc, store, _ := newDirectoryFixture(t)
	if _, err := svc.CreateRole(context.Background(), RoleAdmin, "", nil); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	u, err := svc.RegisterUser(context.Background(), UserRegistration{Username: "wanderer", Password: "long-enough"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if _, err := svc.UpdateUser(context.Background(), u.ID, UserMutation{Roles: []string{RoleAdmin}}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	roles, _ := store.RolesOf(context.Background(), u.ID)
	if len(roles) != 1 || roles[0].Name != RoleAdmin {
		t.Fatalf("expected roles replaced with [%s], got %+v", RoleAdmin, roles)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	svc, _, _ := newDirectoryFixture(t)

	if _, err := svc.CreateRole(context.Background(), "  ", "desc", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank name, got %v", err)
	}
	role, err := svc.CreateRole(context.Background(), "AUDITOR", "read access", []string{"report.read", ""})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0].Name != "report.read" {
		t.Fatalf("expected blank permissions dropped, got %+v", role.Permissions)
	}
}

func TestEnsureBootstrap(t *testing.T) {
	store := newMemoryAdminStore()
	svc, err := NewDirectoryService(store)
	if err != nil {
		t.Fatalf("NewDirectoryService: %v", err)
	}

	created, err := svc.EnsureBootstrap(context.Background(), "admin", "admin")
	if err != nil {
		t.Fatalf("EnsureBootstrap: %v", err)
	}
	if !created {
		t.Fatal("expected admin account to be created on first run")
	}
	admin, err := store.FindByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	roles, _ := store.RolesOf(context.Background(), admin.ID)
	if len(roles) != 1 || roles[0].Name != RoleAdmin {
		t.Fatalf("expected admin to carry %s, got %+v", RoleAdmin, roles)
	}

	created, err = svc.EnsureBootstrap(context.Background(), "admin", "admin")
	if err != nil {
		t.Fatalf("second EnsureBootstrap: %v", err)
	}
	if created {
		t.Fatal("bootstrap must be idempotent")
	}
}
