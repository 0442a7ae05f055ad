// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts per (email, client address).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// Policy configures the sliding window and lockout shared by all implementations.
type Policy struct {
	Window   time.Duration // failures older than this no longer count
	MaxFails int           // failures within Window that trigger a block
	BlockFor time.Duration
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Nop never limits. Used when rate limiting is disabled.
type Nop struct{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return true, 0, nil
}

func (Nop) Success(context.Context, string, []byte) error { return nil }

func (Nop) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	return false, 0, nil
}
