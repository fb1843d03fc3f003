package evi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the evi package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("evi: API key is required")

	// ErrMissingConfigID indicates the EVI configuration ID was not provided.
	ErrMissingConfigID = errors.New("evi: config ID is required")

	// ErrNotConnected indicates the connection is closed.
	ErrNotConnected = errors.New("evi: not connected")
)

// APIError is an error message sent by the voice service.
type APIError struct {
	// Code is the error code from the API, e.g. "E0709".
	Code string

	// Slug is the machine-readable error name.
	Slug string

	// Message is the human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("evi: API error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("evi: API error: %s", e.Message)
}

// ConnectionError represents a WebSocket transport failure.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// StatusCode is the HTTP status of a failed handshake, if any.
	StatusCode int
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evi: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("evi: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error) *ConnectionError {
	return &ConnectionError{Reason: reason, Cause: cause}
}

// IsConnectionError reports whether err is a transport failure.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsAPIError reports whether err is an error reported by the voice service.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
