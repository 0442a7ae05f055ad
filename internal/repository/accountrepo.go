// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to registered accounts.
type AccountRepository interface {
	// Create inserts a new account; a taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// List returns all accounts ordered by creation time.
	List(ctx context.Context) ([]model.Account, error)
	// SetRole changes an account's role and revokes every outstanding refresh token
	// of the account in one transaction, returning how many were revoked.
	// Only used by out-of-band tooling.
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) (int64, error)
}
