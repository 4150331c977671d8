// Package core holds the canonical error taxonomy shared by the pbxlink SDK
// surface and the event/conversation core.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the canonical error for bridge-service API failures.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	StatusCode int       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrAPI            ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewNotFoundError creates a not found error. Lookups of call identifiers
// the bridge no longer knows about resolve to this type; absence is a normal
// outcome, never a crash.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// FromStatus builds an Error from an HTTP status and message, mapping the
// status onto the taxonomy.
func FromStatus(status int, message string) *Error {
	var typ ErrorType
	switch {
	case status == http.StatusNotFound:
		typ = ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		typ = ErrAuthentication
	case status >= 400 && status < 500:
		typ = ErrInvalidRequest
	default:
		typ = ErrAPI
	}
	return &Error{Type: typ, Message: message, StatusCode: status}
}

// IsNotFound reports whether err is a canonical not-found error.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Type == ErrNotFound
}
