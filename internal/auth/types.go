package auth

import (
	"sort"
	"strings"
	"time"
)

// User is a directory principal. The core reads users to verify
// credentials and resolve role scope; all mutation happens through the
// directory CRUD layer.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Role groups permissions under a unique name.
type Role struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a fine-grained capability with a unique name.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RevokedToken is a denylist record: the token's jti plus the moment
// the record itself stops mattering. Never updated after insert.
type RevokedToken struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal is a user with roles resolved from the directory at a
// specific moment. Authorization decisions read from here, never from
// a token's scope claim.
type Principal struct {
	User  *User
	Roles []Role
}

// HasRole reports whether the principal currently holds the named role.
func (p Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the principal's roles grants
// the named permission.
func (p Principal) HasPermission(name string) bool {
	for _, r := range p.Roles {
		for _, perm := range r.Permissions {
			if strings.EqualFold(perm.Name, name) {
				return true
			}
		}
	}
	return false
}

// Scope flattens the principal's role and permission names into the
// space-delimited claim embedded at issuance. Sorted and deduplicated
// so equal role sets always produce the same claim.
func (p Principal) Scope() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, r := range p.Roles {
		add(r.Name)
		for _, perm := range r.Permissions {
			add(perm.Name)
		}
	}
	sort.Strings(out)
	return out
}
