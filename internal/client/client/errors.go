package client

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Client wraps exactly one of them,
// so callers classify with errors.Is.
var (
	// ErrUnauthorized: the server explicitly rejected the credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable: transport failure, 5xx, open breaker or timeout.
	ErrUnavailable = errors.New("server unavailable")
	// ErrValidation: input rejected locally or by the server.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: unknown room, peer, message or join key.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: authenticated but not allowed (e.g. non-admin, non-member).
	ErrForbidden = errors.New("forbidden")
	// ErrMalformedResponse: the server answered with a record we cannot use.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx answer from the backend. Message is the reason the
// server reported, kept verbatim for display.
type APIError struct {
	StatusCode int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// Validationf builds a local ValidationError.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Reason returns the server-reported message of err if it carries one, and
// err.Error() otherwise.
func Reason(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsTransient reports whether err is worth retrying on the next tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedResponse)
}
