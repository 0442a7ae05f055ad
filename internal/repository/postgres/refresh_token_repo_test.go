package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newToken(accountID uuid.UUID, now time.Time) *model.RefreshToken {
	return &model.RefreshToken{
		ID:         uuid.Must(uuid.NewV4()),
		AccountID:  accountID,
		SecretHash: []byte("digest-" + now.String()),
		IssuedAt:   now,
		ExpiresAt:  now.Add(7 * 24 * time.Hour),
	}
}

func TestRefreshTokenRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	tok := newToken(uuid.Must(uuid.NewV4()), time.Now())

	mock.ExpectExec(`INSERT INTO refresh_tokens \(id, account_id, secret_hash, issued_at, expires_at, revoked\)`).
		WithArgs(tok.ID, tok.AccountID, tok.SecretHash, tok.IssuedAt, tok.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), tok))

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(tok.ID, tok.AccountID, tok.SecretHash, tok.IssuedAt, tok.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(context.Background(), tok), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_GetByHash(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	now := time.Now()
	tok := newToken(uuid.Must(uuid.NewV4()), now)

	mock.ExpectQuery(`FROM refresh_tokens WHERE secret_hash=\$1`).
		WithArgs(tok.SecretHash).
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "secret_hash", "issued_at", "expires_at", "revoked"}).
			AddRow(tok.ID, tok.AccountID, tok.SecretHash, tok.IssuedAt, tok.ExpiresAt, true))
	got, err := r.GetByHash(context.Background(), tok.SecretHash)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)
	require.True(t, got.Revoked)

	mock.ExpectQuery(`FROM refresh_tokens WHERE secret_hash=\$1`).
		WithArgs([]byte("unknown")).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByHash(context.Background(), []byte("unknown"))
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Rotate_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	now := time.Now()
	oldID := uuid.Must(uuid.NewV4())
	next := newToken(uuid.Must(uuid.NewV4()), now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked=true WHERE id=\$1 AND revoked=false AND expires_at > \$2`).
		WithArgs(oldID, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(next.ID, next.AccountID, next.SecretHash, next.IssuedAt, next.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, r.Rotate(context.Background(), oldID, next, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Rotate_LostRace(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	now := time.Now()
	oldID := uuid.Must(uuid.NewV4())
	next := newToken(uuid.Must(uuid.NewV4()), now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked=true WHERE id=\$1`).
		WithArgs(oldID, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := r.Rotate(context.Background(), oldID, next, now)
	require.ErrorIs(t, err, errs.ErrInvalidOrExpiredToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Rotate_InsertFailsRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	now := time.Now()
	oldID := uuid.Must(uuid.NewV4())
	next := newToken(uuid.Must(uuid.NewV4()), now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked=true WHERE id=\$1`).
		WithArgs(oldID, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(next.ID, next.AccountID, next.SecretHash, next.IssuedAt, next.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := r.Rotate(context.Background(), oldID, next, now)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_Revoke(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRefreshTokenRepo(db)
	accID := uuid.Must(uuid.NewV4())
	hash := []byte("digest")

	mock.ExpectQuery(`UPDATE refresh_tokens SET revoked=true WHERE secret_hash=\$1 AND revoked=false RETURNING account_id`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow(accID))
	got, ok, err := r.Revoke(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, accID, got)

	// already revoked or unknown
	mock.ExpectQuery(`UPDATE refresh_tokens SET revoked=true WHERE secret_hash=\$1`).
		WithArgs(hash).
		WillReturnError(pgx.ErrNoRows)
	got, ok, err = r.Revoke(context.Background(), hash)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uuid.Nil, got)

	require.NoError(t, mock.ExpectationsWereMet())
}
