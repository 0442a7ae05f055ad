package sqlite

import (
	"context"
	"database/sql"

	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepo implements AccountRepository on SQLite.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, email, pwd_hash, first_name, last_name, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, pwd_hash, first_name, last_name, role, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.SQL.ExecContext(ctx, q,
		a.ID.String(), a.Email, a.PwdHash, a.FirstName, a.LastName, string(a.Role), toMillis(a.CreatedAt))
	return mapErr(err)
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = ?`
	return scanAccount(r.db.SQL.QueryRowContext(ctx, q, id.String()))
}

// GetByEmail selects an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email = ?`
	return scanAccount(r.db.SQL.QueryRowContext(ctx, q, email))
}

// List returns all accounts, oldest first.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts ORDER BY created_at, id`
	rows, err := r.db.SQL.QueryContext(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// SetRole updates the role of an existing account and revokes its outstanding
// refresh tokens in the same transaction.
func (r *AccountRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) (revoked int64, err error) {
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			revoked, err = 0, mapErr(e)
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE accounts SET role = ? WHERE id = ?`, string(role), id.String())
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	if n == 0 {
		return 0, mapErr(sql.ErrNoRows)
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE account_id = ? AND revoked = 0`, id.String())
	if err != nil {
		return 0, mapErr(err)
	}
	if revoked, err = res.RowsAffected(); err != nil {
		return 0, mapErr(err)
	}
	return revoked, nil
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		a         model.Account
		id, role  string
		createdAt int64
	)
	if err := row.Scan(&id, &a.Email, &a.PwdHash, &a.FirstName, &a.LastName, &role, &createdAt); err != nil {
		return nil, mapErr(err)
	}
	parsed, err := uuid.FromString(id)
	if err != nil {
		return nil, mapErr(err)
	}
	a.ID = parsed
	a.Role = model.Role(role)
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}
