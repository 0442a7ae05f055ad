// Package storage opens the account store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cigarclub/identity/internal/config"
	"github.com/cigarclub/identity/internal/limiter"
	"github.com/cigarclub/identity/internal/migrate"
	"github.com/cigarclub/identity/internal/repository"
	"github.com/cigarclub/identity/internal/repository/postgres"
	"github.com/cigarclub/identity/internal/repository/sqlite"
)

// Store bundles the repositories and login limiter of one backend.
type Store struct {
	Accounts repository.AccountRepository
	Tokens   repository.RefreshTokenRepository
	Limiter  limiter.Limiter

	ping  func(context.Context) error
	close func() error
}

// Open migrates the configured backend to the latest schema and opens it.
// A limiter policy with MaxFails 0 yields limiter.Nop.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	policy := cfg.LimiterPolicy()

	switch cfg.StoreDriver {
	case migrate.DriverPostgres:
		if err := migrate.Up(ctx, migrate.DriverPostgres, cfg.DSN); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st := &Store{
			Accounts: postgres.NewAccountRepo(db),
			Tokens:   postgres.NewRefreshTokenRepo(db),
			Limiter:  limiter.Nop{},
			ping:     db.Ping,
			close: func() error {
				db.Close()
				return nil
			},
		}
		if policy.MaxFails > 0 {
			st.Limiter = limiter.NewPG(db.Pool, policy)
		}
		log.Info("store opened", zap.String("driver", cfg.StoreDriver))
		return st, nil

	case migrate.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		st := &Store{
			Accounts: sqlite.NewAccountRepo(db),
			Tokens:   sqlite.NewRefreshTokenRepo(db),
			Limiter:  limiter.Nop{},
			ping:     db.Ping,
			close:    db.Close,
		}
		if policy.MaxFails > 0 {
			st.Limiter = limiter.NewSQLite(db.SQL, policy)
		}
		log.Info("store opened", zap.String("driver", cfg.StoreDriver), zap.String("path", cfg.DSN))
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Ping reports whether the backend answers.
func (s *Store) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the backend.
func (s *Store) Close() error { return s.close() }
