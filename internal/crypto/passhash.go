// Package crypto implements server-side password hashing and secret generation.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// RefreshSecretLen is the number of random bytes behind every refresh token secret.
const RefreshSecretLen = 32

// ErrPasswordTooLong is returned for passwords bcrypt would silently truncate.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a bcrypt hasher. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewRefreshSecret returns a base64url encoded 256-bit random secret.
func NewRefreshSecret() (string, error) {
	b, err := RandBytes(RefreshSecretLen)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashPassword returns a salted bcrypt hash of password.
func (h *Hasher) HashPassword(password []byte) ([]byte, error) {
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword(password, h.cost)
}

// VerifyPassword reports whether password matches hash. A malformed hash is a mismatch.
func (h *Hasher) VerifyPassword(password, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}

// HashSecret returns the digest under which a refresh token secret is stored and looked up.
func HashSecret(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}
