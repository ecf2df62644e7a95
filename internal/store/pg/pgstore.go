// Package pg implements the principal directory and the token
// denylist on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"identra.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store wraps a database handle. It implements auth.AdminStore and
// auth.RevocationStore.
type Store struct {
	db *sql.DB
}

// New constructs a Store over an open handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("pg: database handle is required")
	}
	return &Store{db: db}, nil
}

// Ping verifies connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var (
	_ auth.AdminStore      = (*Store)(nil)
	_ auth.RevocationStore = (*Store)(nil)
)

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrForeignKeyViolation
}
