package pg

import (
	"context"
	"database/sql"
	"time"

	"identra.org/internal/auth"
)

// Revoke implements auth.RevocationStore. The on-conflict clause makes
// re-revoking a no-op, so a retried logout after a timeout is safe;
// the affected-row count tells the caller whether this insert won.
func (s *Store) Revoke(ctx context.Context, rec auth.RevokedToken) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (jti, expires_at)
		values ($1, $2)
		on conflict (jti) do nothing
	`, rec.JTI, rec.ExpiresAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsRevoked implements auth.RevocationStore.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`select 1 from revoked_tokens where jti = $1`, jti).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeExpired implements auth.RevocationStore. Records with a future
// expiry are never touched.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
