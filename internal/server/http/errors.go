package httpserver

import (
	"errors"
	"net/http"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/verifier"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToAPIError maps a service error to an HTTP status and a stable body.
// Causes inside the unauthenticated family are never distinguished.
func ToAPIError(err error) (int, APIError) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, APIError{Code: "CONFLICT", Message: "email already registered"}
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{Code: verifier.CodeUnauthenticated, Message: "invalid email or password"}
	case errors.Is(err, errs.ErrInvalidOrExpiredToken):
		return http.StatusUnauthorized, APIError{Code: verifier.CodeUnauthenticated, Message: "invalid or expired token"}
	case errors.Is(err, errs.ErrInvalidToken):
		return http.StatusUnauthorized, APIError{Code: verifier.CodeUnauthenticated, Message: verifier.MsgUnauthenticated}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, APIError{Code: "RATE_LIMITED", Message: "too many attempts, try later"}
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "not found"}
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable, APIError{Code: "UNAVAILABLE", Message: "service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: "internal error"}
	}
}
