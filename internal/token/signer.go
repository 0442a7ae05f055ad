// Package token issues and validates the stateless access tokens shared by every service in the fleet.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsVersion is the current access token claim schema version.
const ClaimsVersion = 1

// MinSecretLen is the minimum accepted length of the shared HMAC secret.
const MinSecretLen = 32

// Config is the shared trust configuration. Secret, Issuer and Audience must be
// identical on the issuer and on every relying service.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration    // only needed by the issuer
	Leeway    time.Duration    // tolerated clock skew for nbf/exp
	Now       func() time.Time // nil means time.Now
}

// Validate checks the trust triple.
func (c Config) Validate() error {
	if len(c.Secret) < MinSecretLen {
		return fmt.Errorf("jwt secret too short (min %d bytes)", MinSecretLen)
	}
	if c.Issuer == "" {
		return errors.New("jwt issuer is required")
	}
	if c.Audience == "" {
		return errors.New("jwt audience is required")
	}
	if c.Leeway < 0 {
		return errors.New("jwt leeway must not be negative")
	}
	return nil
}

// Claims is the verified, versioned claim set of an access token.
type Claims struct {
	Subject    uuid.UUID
	Email      string
	Role       model.Role
	GivenName  string
	FamilyName string
	Issuer     string
	Audience   []string
	NotBefore  time.Time
	ExpiresAt  time.Time
	IssuedAt   time.Time
	Version    int
}

// IsAdmin reports whether the caller holds the Admin role.
func (c Claims) IsAdmin() bool { return c.Role == model.RoleAdmin }

// wireClaims is the JSON shape of the token payload.
type wireClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Role       string `json:"role"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Version    int    `json:"ver"`
}

// Validator validates raw access tokens. Relying services depend on this only.
type Validator interface {
	Validate(raw string) (Claims, error)
}

// Signer issues and validates HS256 access tokens.
type Signer struct {
	cfg    Config
	parser *jwt.Parser
}

var _ Validator = (*Signer)(nil)

// NewSigner constructs a Signer after validating cfg.
func NewSigner(cfg Config) (*Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Signer{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue signs a fresh access token for acc using the configured TTL.
func (s *Signer) Issue(acc model.Account) (string, time.Time, error) {
	return s.IssueWithTTL(acc, s.cfg.AccessTTL)
}

// IssueWithTTL signs a fresh access token valid for ttl.
func (s *Signer) IssueWithTTL(acc model.Account, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("access token ttl must be positive")
	}
	now := s.cfg.Now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:      acc.Email,
		Role:       string(acc.Role),
		GivenName:  acc.FirstName,
		FamilyName: acc.LastName,
		Version:    ClaimsVersion,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate checks signature, issuer, audience, not-before and expiry, in that order.
// Every failure wraps errs.ErrInvalidToken.
func (s *Signer) Validate(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, invalid("empty token")
	}

	var parsed wireClaims
	if _, err := s.parser.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}

	if parsed.Issuer != s.cfg.Issuer {
		return Claims{}, invalid("issuer mismatch")
	}
	if !audienceContains(parsed.Audience, s.cfg.Audience) {
		return Claims{}, invalid("audience mismatch")
	}

	now := s.cfg.Now().UTC()
	if parsed.NotBefore == nil {
		return Claims{}, invalid("nbf is required")
	}
	if now.Add(s.cfg.Leeway).Before(parsed.NotBefore.Time) {
		return Claims{}, invalid("token not active yet")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, invalid("exp is required")
	}
	if !now.Add(-s.cfg.Leeway).Before(parsed.ExpiresAt.Time) {
		return Claims{}, invalid("token is expired")
	}

	if parsed.Version != ClaimsVersion {
		return Claims{}, invalid("unsupported claims version")
	}
	sub, err := uuid.FromString(parsed.Subject)
	if err != nil || sub == uuid.Nil {
		return Claims{}, invalid("bad subject")
	}
	role, err := model.ParseRole(parsed.Role)
	if err != nil {
		return Claims{}, invalid("bad role")
	}

	out := Claims{
		Subject:    sub,
		Email:      parsed.Email,
		Role:       role,
		GivenName:  parsed.GivenName,
		FamilyName: parsed.FamilyName,
		Issuer:     parsed.Issuer,
		Audience:   []string(parsed.Audience),
		NotBefore:  parsed.NotBefore.Time.UTC(),
		ExpiresAt:  parsed.ExpiresAt.Time.UTC(),
		Version:    parsed.Version,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return out, nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", errs.ErrInvalidToken, reason)
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
