package repository

import (
	"context"
	"time"

	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RefreshTokenRepository persists refresh tokens. Every state change targets the
// token row directly with a conditional write; rows are never deleted.
type RefreshTokenRepository interface {
	// Create inserts a freshly issued token.
	Create(ctx context.Context, t *model.RefreshToken) error

	// GetByHash loads a token by the digest of its secret.
	GetByHash(ctx context.Context, secretHash []byte) (*model.RefreshToken, error)

	// Rotate revokes oldID only if it is still redeemable at now and inserts next,
	// as one atomic unit. If the old token was already revoked or expired it
	// returns errs.ErrInvalidOrExpiredToken and inserts nothing.
	Rotate(ctx context.Context, oldID uuid.UUID, next *model.RefreshToken, now time.Time) error

	// Revoke flips revoked=false->true for the given digest. It reports the owning
	// account and whether this call performed the transition; unknown digests are not an error.
	Revoke(ctx context.Context, secretHash []byte) (accountID uuid.UUID, revoked bool, err error)
}
