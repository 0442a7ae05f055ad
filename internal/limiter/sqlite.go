package limiter

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLite is the single-node counterpart of PG, storing timestamps as unix milliseconds.
type SQLite struct {
	db     *sql.DB
	policy Policy
	now    func() time.Time
}

// NewSQLite constructs a SQLite-backed limiter.
func NewSQLite(db *sql.DB, p Policy) *SQLite {
	return &SQLite{db: db, policy: p, now: time.Now}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *SQLite) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE email = ? AND ip_hash = ?`
	var blockedUntil int64
	err := l.db.QueryRowContext(ctx, q, email, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		until := time.UnixMilli(blockedUntil)
		if now := l.now(); until.After(now) {
			return false, until.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, sql.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (email, ip).
func (l *SQLite) Success(ctx context.Context, email string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES (?1, ?2, 0, 0, ?3)
ON CONFLICT (email, ip_hash)
DO UPDATE SET fail_count = 0, blocked_until = 0, updated_at = ?3`
	_, err := l.db.ExecContext(ctx, q, email, ipHash, l.now().UnixMilli())
	return err
}

// Failure records a failed attempt; may set a block until a future time.
func (l *SQLite) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()

	const q = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES (?1, ?2, 1, 0, ?3)
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN ?3 - auth_limiter.updated_at > ?4 THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = ?3
RETURNING fail_count`
	var fails int
	err := l.db.QueryRowContext(ctx, q, email, ipHash, now.UnixMilli(), l.policy.Window.Milliseconds()).Scan(&fails)
	if err != nil {
		return false, 0, err
	}
	if fails >= l.policy.MaxFails {
		const upd = `UPDATE auth_limiter SET blocked_until = ? WHERE email = ? AND ip_hash = ?`
		if _, err := l.db.ExecContext(ctx, upd, now.Add(l.policy.BlockFor).UnixMilli(), email, ipHash); err != nil {
			return false, 0, err
		}
		return true, l.policy.BlockFor, nil
	}
	return false, 0, nil
}
