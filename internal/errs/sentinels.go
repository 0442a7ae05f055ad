// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input rejected before touching the store.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication (unknown email or wrong password).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidOrExpiredToken indicates a refresh token that is unknown, revoked or expired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrInvalidToken indicates an access token that failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the persistence layer could not be reached; safe to retry.
	ErrUnavailable = errors.New("unavailable")
)

// IsUnauthenticated reports whether err belongs to the unauthenticated family.
// Callers map all of them to the same response.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidOrExpiredToken) ||
		errors.Is(err, ErrInvalidToken)
}
