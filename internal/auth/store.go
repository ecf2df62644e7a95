package auth

import (
	"context"
	"time"
)

// Directory is the principal directory the core reads from. Lookups
// happen fresh at every authorization decision; the core never caches
// role sets across requests.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	RolesOf(ctx context.Context, userID string) ([]Role, error)
}

// RevocationStore persists revoked token identifiers until their
// natural death. Implementations must support concurrent Revoke and
// IsRevoked with read-your-writes consistency inside one process.
type RevocationStore interface {
	// Revoke inserts the record and reports whether it was newly
	// created. Re-revoking an already-revoked jti returns false, nil;
	// the insert-or-nothing must be atomic so two concurrent revokes
	// of one jti see exactly one true.
	Revoke(ctx context.Context, rec RevokedToken) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// PurgeExpired removes records whose expiry is at or before now
	// and reports how many were removed. Records with a future expiry
	// are never touched.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
