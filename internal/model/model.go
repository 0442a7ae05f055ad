// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the closed set of roles carried in access tokens.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// ParseRole returns the Role matching s exactly, or an error for unknown roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// NormalizeEmail trims and lower-cases an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account represents a registered identity. The plaintext password is never stored.
type Account struct {
	ID        uuid.UUID // PK
	Email     string    // unique, normalized
	PwdHash   []byte    // bcrypt(password), salt embedded
	FirstName string
	LastName  string
	Role      Role
	CreatedAt time.Time
}

// RefreshToken is a persisted, opaque, single-use credential owned by an account.
// Only a digest of the secret presented by the client is stored.
type RefreshToken struct {
	ID         uuid.UUID // PK, distinct from the secret
	AccountID  uuid.UUID // FK -> accounts.id
	SecretHash []byte    // sha256(secret), unique
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool // monotonic false -> true
}

// Redeemable reports whether the token may still be exchanged at the given instant.
func (t RefreshToken) Redeemable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// AuthResult is returned by every successful register/login/refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Email        string
	Role         Role
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}
