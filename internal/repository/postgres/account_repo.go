package postgres

import (
	"context"

	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, email, pwd_hash, first_name, last_name, role, created_at`

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, pwd_hash, first_name, last_name, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Email, a.PwdHash, a.FirstName, a.LastName, string(a.Role), a.CreatedAt)
	return mapErr(err)
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, email))
}

// List returns all accounts, oldest first.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q)
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
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, mapErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			revoked, err = 0, mapErr(e)
		}
	}()

	tag, err := tx.Exec(ctx, `UPDATE accounts SET role=$2 WHERE id=$1`, id, string(role))
	if err != nil {
		return 0, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, mapErr(pgx.ErrNoRows)
	}
	tag, err = tx.Exec(ctx, `UPDATE refresh_tokens SET revoked=true WHERE account_id=$1 AND revoked=false`, id)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a    model.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PwdHash, &a.FirstName, &a.LastName, &role, &a.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.Role = model.Role(role)
	return &a, nil
}
