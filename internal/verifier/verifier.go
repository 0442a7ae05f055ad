// Package verifier authenticates bearer access tokens for relying services.
// It is stateless: validation needs only the shared secret, issuer and audience.
package verifier

import (
	"context"
	"errors"
	"strings"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/token"
)

// Response codes and messages shared by the HTTP and gRPC adapters.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"

	MsgUnauthenticated = "authentication required"
	MsgForbidden       = "forbidden"
)

var errNoBearer = errors.New("no bearer token")

// Verifier turns an Authorization header into validated claims.
type Verifier struct {
	v token.Validator
}

// New wraps a token validator.
func New(v token.Validator) *Verifier { return &Verifier{v: v} }

// Authenticate validates the bearer token in an Authorization header value.
// Every failure wraps errs.ErrInvalidToken.
func (v *Verifier) Authenticate(header string) (token.Claims, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return token.Claims{}, err
	}
	return v.v.Validate(raw)
}

// BearerToken extracts the token from "Bearer <token>" (scheme is case-insensitive).
func BearerToken(header string) (string, error) {
	h := strings.TrimSpace(header)
	if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
		if t := strings.TrimSpace(h[7:]); t != "" {
			return t, nil
		}
	}
	return "", errors.Join(errs.ErrInvalidToken, errNoBearer)
}

type ctxKey string

const claimsKey ctxKey = "identity.claims"

// WithClaims stores authenticated claims in context.
func WithClaims(ctx context.Context, c token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext fetches claims stored by the middleware or interceptor.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(token.Claims)
	return c, ok
}
