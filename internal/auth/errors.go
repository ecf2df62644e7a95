package auth

import (
	"fmt"
	"net/http"
)

// Error is a stable, machine-readable failure. Clients branch on Kind
// (or the numeric Code), never on Message text.
type Error struct {
	Kind    string
	Code    int
	Status  int
	Message string
}

func (e *Error) Error() string {
	return "auth: " + e.Message
}

// HTTPStatus returns the HTTP status class the error maps to.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Retryable reports whether the caller may retry the same input.
// Only store outages are transient; every other kind is permanent.
func (e *Error) Retryable() bool {
	return e == ErrStoreUnavailable
}

var (
	ErrPrincipalNotFound  = &Error{Kind: "principal_not_found", Code: 1004, Status: http.StatusNotFound, Message: "principal does not exist"}
	ErrInvalidCredentials = &Error{Kind: "invalid_credentials", Code: 1005, Status: http.StatusUnauthorized, Message: "invalid credentials"}
	ErrForbidden          = &Error{Kind: "forbidden", Code: 1006, Status: http.StatusForbidden, Message: "permission denied"}
	ErrUnauthorized       = &Error{Kind: "unauthorized", Code: 1007, Status: http.StatusUnauthorized, Message: "authentication required"}
	ErrMalformedToken     = &Error{Kind: "malformed_token", Code: 1008, Status: http.StatusBadRequest, Message: "token cannot be parsed"}
	ErrBadSignature       = &Error{Kind: "bad_signature", Code: 1009, Status: http.StatusUnauthorized, Message: "token signature mismatch"}
	ErrTokenExpired       = &Error{Kind: "token_expired", Code: 1010, Status: http.StatusUnauthorized, Message: "token has expired"}
	ErrTokenRevoked       = &Error{Kind: "token_revoked", Code: 1011, Status: http.StatusUnauthorized, Message: "token has been revoked"}
	ErrStoreUnavailable   = &Error{Kind: "store_unavailable", Code: 1099, Status: http.StatusServiceUnavailable, Message: "backing store unavailable"}
)

// storeUnavailable wraps a backing-store failure so errors.Is(err,
// ErrStoreUnavailable) holds while the cause stays visible in logs.
func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
