package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"identra.org/internal/auth"
	"identra.org/internal/ids"
)

const userColumns = `id, username, password_hash, first_name, last_name, date_of_birth, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u   auth.User
		dob sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &dob, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if dob.Valid {
		t := dob.Time
		u.DateOfBirth = &t
	}
	return &u, nil
}

// CreateUser inserts a new principal. A duplicate username maps to
// auth.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, first_name, last_name, date_of_birth)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.DateOfBirth)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// FindByUsername implements auth.Directory.
func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, err
	}
	return u, nil
}

// FindByID implements auth.Directory.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns all principals ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser applies the update and replaces role assignments when
// Roles is non-nil.
func (s *Store) UpdateUser(ctx context.Context, userID string, upd auth.UserUpdate) (*auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sets := []string{"updated_at = now()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*upd.PasswordHash))
	}
	if upd.FirstName != nil {
		sets = append(sets, "first_name = "+arg(*upd.FirstName))
	}
	if upd.LastName != nil {
		sets = append(sets, "last_name = "+arg(*upd.LastName))
	}
	if upd.DateOfBirth != nil {
		sets = append(sets, "date_of_birth = "+arg(*upd.DateOfBirth))
	}
	query := `update users set ` + strings.Join(sets, ", ") + ` where id = ` + arg(userID) + ` returning ` + userColumns
	u, err := scanUser(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, err
	}

	if upd.Roles != nil {
		if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
			return nil, err
		}
		for _, role := range upd.Roles {
			if _, err := tx.ExecContext(ctx,
				`insert into user_roles (user_id, role_name) values ($1, $2) on conflict do nothing`,
				userID, role); err != nil {
				if isForeignKeyViolation(err) {
					return nil, fmt.Errorf("unknown role %q", role)
				}
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser removes the principal and its role assignments.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

// AssignRole links a role to a user, idempotently.
func (s *Store) AssignRole(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles (user_id, role_name) values ($1, $2) on conflict do nothing`,
		userID, roleName)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("unknown user or role: %w", err)
	}
	return err
}

// RolesOf implements auth.Directory: the user's current roles with
// their permissions, resolved fresh on every call.
func (s *Store) RolesOf(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name, r.description, coalesce(p.name, ''), coalesce(p.description, '')
		from user_roles ur
		join roles r on r.name = ur.role_name
		left join role_permissions rp on rp.role_name = r.name
		left join permissions p on p.name = rp.permission_name
		where ur.user_id = $1
		order by r.name, p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles   []auth.Role
		current *auth.Role
	)
	for rows.Next() {
		var roleName, roleDesc, permName, permDesc string
		if err := rows.Scan(&roleName, &roleDesc, &permName, &permDesc); err != nil {
			return nil, err
		}
		if current == nil || current.Name != roleName {
			roles = append(roles, auth.Role{Name: roleName, Description: roleDesc})
			current = &roles[len(roles)-1]
		}
		if permName != "" {
			current.Permissions = append(current.Permissions, auth.Permission{Name: permName, Description: permDesc})
		}
	}
	return roles, rows.Err()
}

// CreateRole inserts a role; duplicate names map to auth.ErrConflict.
func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into roles (name, description) values ($1, $2)`,
		role.Name, role.Description); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	for _, perm := range role.Permissions {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions (role_name, permission_name) values ($1, $2) on conflict do nothing`,
			role.Name, perm.Name); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("unknown permission %q", perm.Name)
			}
			return err
		}
	}
	return tx.Commit()
}

// ListRoles returns every role with its permissions.
func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name, r.description, coalesce(p.name, ''), coalesce(p.description, '')
		from roles r
		left join role_permissions rp on rp.role_name = r.name
		left join permissions p on p.name = rp.permission_name
		order by r.name, p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles   []auth.Role
		current *auth.Role
	)
	for rows.Next() {
		var roleName, roleDesc, permName, permDesc string
		if err := rows.Scan(&roleName, &roleDesc, &permName, &permDesc); err != nil {
			return nil, err
		}
		if current == nil || current.Name != roleName {
			roles = append(roles, auth.Role{Name: roleName, Description: roleDesc})
			current = &roles[len(roles)-1]
		}
		if permName != "" {
			current.Permissions = append(current.Permissions, auth.Permission{Name: permName, Description: permDesc})
		}
	}
	return roles, rows.Err()
}

// SetRolePermissions replaces a role's permission set.
func (s *Store) SetRolePermissions(ctx context.Context, roleName string, permissions []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_name = $1`, roleName); err != nil {
		return err
	}
	for _, perm := range permissions {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions (role_name, permission_name) values ($1, $2)`,
			roleName, perm); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("unknown role or permission: %w", err)
			}
			return err
		}
	}
	return tx.Commit()
}

// DeleteRole removes the role and its links.
func (s *Store) DeleteRole(ctx context.Context, roleName string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name = $1`, roleName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// CreatePermission inserts a permission; duplicates map to auth.ErrConflict.
func (s *Store) CreatePermission(ctx context.Context, perm *auth.Permission) error {
	if _, err := s.db.ExecContext(ctx,
		`insert into permissions (name, description) values ($1, $2)`,
		perm.Name, perm.Description); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// ListPermissions returns the permission catalog.
func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select name, description from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// DeletePermission removes a permission and its role links.
func (s *Store) DeletePermission(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where name = $1`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
