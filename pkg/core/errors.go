package core

import (
	"errors"
	"fmt"
)

// Error represents a speech session error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Cause      error     `json:"-"`
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
	ErrInvalidRequest    ErrorType = "invalid_request_error"
	ErrTransport         ErrorType = "transport_error"
	ErrService           ErrorType = "service_error"
	ErrInactivityTimeout ErrorType = "inactivity_timeout"
	ErrMalformedPayload  ErrorType = "malformed_payload"
)

// MalformedPayloadMessage is reported when an inbound text frame is not valid JSON.
const MalformedPayloadMessage = "Unable to parse received message."

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewTransportError wraps a connection level failure.
func NewTransportError(message string, cause error) *Error {
	if cause != nil && message == "" {
		message = cause.Error()
	}
	return &Error{
		Type:    ErrTransport,
		Message: message,
		Cause:   cause,
	}
}

// NewServiceError creates an error reported by the remote service in an error frame.
func NewServiceError(message string) *Error {
	return &Error{
		Type:    ErrService,
		Message: message,
	}
}

// NewInactivityTimeoutError creates the non-fatal "no speech detected" condition.
func NewInactivityTimeoutError(message string) *Error {
	return &Error{
		Type:    ErrInactivityTimeout,
		Message: message,
	}
}

// NewMalformedPayloadError creates the error reported for unparsable inbound frames.
func NewMalformedPayloadError(cause error) *Error {
	return &Error{
		Type:    ErrMalformedPayload,
		Message: MalformedPayloadMessage,
		Cause:   cause,
	}
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, typ ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == typ
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}
