// Package common defines shared constants, sentinel errors and small helpers
// used across the gophdrive client layers. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Auth errors. Anything wrapping ErrorUnauthorized is an auth failure and
	// is raised before a network call is attempted.
	ErrorUnauthorized   = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrIdentityMismatch = errors.New("identity mismatch")

	// Input errors caught before any network call.
	ErrorValidation = errors.New("validation error")
)

// HTTPError is a non-2xx response from a remote API. It carries the status
// code and the raw response body; interpreting specific codes is left to the
// caller.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("http error: status %d, body: %s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 if err does not
// wrap an *HTTPError.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Validationf returns an error wrapping ErrorValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

// Unauthorizedf returns an error wrapping ErrorUnauthorized.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorUnauthorized, fmt.Sprintf(format, args...))
}

// IsPermanent reports whether err must not be retried. Validation and auth
// failures, context cancellation and 404 responses qualify.
func IsPermanent(err error) bool {
	return StatusCode(err) == 404 ||
		errors.Is(err, ErrorValidation) ||
		errors.Is(err, ErrorUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
