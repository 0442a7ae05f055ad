package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/repository"
)

// AccountService exposes the account directory and out-of-band role management.
type AccountService interface {
	// List returns every account, oldest first.
	List(ctx context.Context) ([]model.Account, error)
	// Get returns a single account.
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// SetRole assigns a role by email and, atomically with it, revokes the account's
	// refresh tokens so the next access token carries the new role.
	SetRole(ctx context.Context, email string, role model.Role) (revoked int64, err error)
}

type AccountServiceImpl struct {
	accounts repository.AccountRepository
	log      *zap.Logger
}

// NewAccountService constructs AccountService.
func NewAccountService(accounts repository.AccountRepository, log *zap.Logger) *AccountServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountServiceImpl{accounts: accounts, log: log}
}

// List returns all accounts.
func (s *AccountServiceImpl) List(ctx context.Context) ([]model.Account, error) {
	return s.accounts.List(ctx)
}

// Get returns one account by id.
func (s *AccountServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty id", errs.ErrValidation)
	}
	return s.accounts.GetByID(ctx, id)
}

// SetRole updates the role and revokes outstanding sessions in one store transaction.
func (s *AccountServiceImpl) SetRole(ctx context.Context, email string, role model.Role) (int64, error) {
	if _, err := model.ParseRole(string(role)); err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	acc, err := s.accounts.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return 0, err
	}
	n, err := s.accounts.SetRole(ctx, acc.ID, role)
	if err != nil {
		return 0, err
	}
	s.log.Info("role changed",
		zap.String("account_id", acc.ID.String()),
		zap.String("role", string(role)),
		zap.Int64("sessions_revoked", n))
	return n, nil
}
