package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepo implements RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepo struct{ db *DB }

// NewRefreshTokenRepo constructs a refresh token repository.
func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const insertToken = `
INSERT INTO refresh_tokens (id, account_id, secret_hash, issued_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, false)`

// Create inserts a freshly issued token.
func (r *RefreshTokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.db.Pool.Exec(ctx, insertToken, t.ID, t.AccountID, t.SecretHash, t.IssuedAt, t.ExpiresAt)
	return mapErr(err)
}

// GetByHash selects a token by the digest of its secret.
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, secretHash []byte) (*model.RefreshToken, error) {
	const q = `
SELECT id, account_id, secret_hash, issued_at, expires_at, revoked
FROM refresh_tokens WHERE secret_hash=$1`
	var t model.RefreshToken
	err := r.db.Pool.QueryRow(ctx, q, secretHash).
		Scan(&t.ID, &t.AccountID, &t.SecretHash, &t.IssuedAt, &t.ExpiresAt, &t.Revoked)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

// Rotate revokes oldID if it is still redeemable and inserts next in the same transaction.
func (r *RefreshTokenRepo) Rotate(
	ctx context.Context, oldID uuid.UUID, next *model.RefreshToken, now time.Time,
) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = mapErr(e)
		}
	}()

	const revoke = `
UPDATE refresh_tokens SET revoked=true
WHERE id=$1 AND revoked=false AND expires_at > $2`
	tag, err := tx.Exec(ctx, revoke, oldID, now)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrInvalidOrExpiredToken
	}
	if _, err = tx.Exec(ctx, insertToken, next.ID, next.AccountID, next.SecretHash, next.IssuedAt, next.ExpiresAt); err != nil {
		return mapErr(err)
	}
	return nil
}

// Revoke flips the revoked flag for the given digest if it is still set to false.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, secretHash []byte) (uuid.UUID, bool, error) {
	const q = `
UPDATE refresh_tokens SET revoked=true
WHERE secret_hash=$1 AND revoked=false
RETURNING account_id`
	var accountID uuid.UUID
	err := r.db.Pool.QueryRow(ctx, q, secretHash).Scan(&accountID)
	switch {
	case err == nil:
		return accountID, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, mapErr(err)
	}
}
