package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RefreshTokenRepo implements RefreshTokenRepository on SQLite.
type RefreshTokenRepo struct{ db *DB }

// NewRefreshTokenRepo constructs a refresh token repository.
func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const insertToken = `
INSERT INTO refresh_tokens (id, account_id, secret_hash, issued_at, expires_at, revoked)
VALUES (?, ?, ?, ?, ?, 0)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefreshToken(ctx context.Context, ex execer, t *model.RefreshToken) error {
	_, err := ex.ExecContext(ctx, insertToken,
		t.ID.String(), t.AccountID.String(), t.SecretHash, toMillis(t.IssuedAt), toMillis(t.ExpiresAt))
	return mapErr(err)
}

// Create inserts a freshly issued token.
func (r *RefreshTokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return insertRefreshToken(ctx, r.db.SQL, t)
}

// GetByHash selects a token by the digest of its secret.
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, secretHash []byte) (*model.RefreshToken, error) {
	const q = `
SELECT id, account_id, secret_hash, issued_at, expires_at, revoked
FROM refresh_tokens WHERE secret_hash = ?`
	var (
		t                  model.RefreshToken
		id, accountID      string
		issuedAt, expireAt int64
	)
	err := r.db.SQL.QueryRowContext(ctx, q, secretHash).
		Scan(&id, &accountID, &t.SecretHash, &issuedAt, &expireAt, &t.Revoked)
	if err != nil {
		return nil, mapErr(err)
	}
	if t.ID, err = uuid.FromString(id); err != nil {
		return nil, mapErr(err)
	}
	if t.AccountID, err = uuid.FromString(accountID); err != nil {
		return nil, mapErr(err)
	}
	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expireAt)
	return &t, nil
}

// Rotate revokes oldID if it is still redeemable and inserts next in the same transaction.
func (r *RefreshTokenRepo) Rotate(
	ctx context.Context, oldID uuid.UUID, next *model.RefreshToken, now time.Time,
) (err error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = mapErr(e)
		}
	}()

	const revoke = `
UPDATE refresh_tokens SET revoked = 1
WHERE id = ? AND revoked = 0 AND expires_at > ?`
	res, err := tx.ExecContext(ctx, revoke, oldID.String(), toMillis(now))
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return errs.ErrInvalidOrExpiredToken
	}
	return insertRefreshToken(ctx, tx, next)
}

// Revoke flips the revoked flag for the given digest if it is still unset.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, secretHash []byte) (uuid.UUID, bool, error) {
	const q = `
UPDATE refresh_tokens SET revoked = 1
WHERE secret_hash = ? AND revoked = 0
RETURNING account_id`
	var accountID string
	err := r.db.SQL.QueryRowContext(ctx, q, secretHash).Scan(&accountID)
	switch {
	case err == nil:
		id, err := uuid.FromString(accountID)
		if err != nil {
			return uuid.Nil, false, mapErr(err)
		}
		return id, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, mapErr(err)
	}
}
