package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tools package.
var (
	// ErrNoCalendar indicates the dispatcher has no calendar collaborator.
	ErrNoCalendar = errors.New("tools: calendar not configured")

	// ErrNoDirectory indicates the dispatcher has no directory collaborator.
	ErrNoDirectory = errors.New("tools: directory not configured")

	// ErrMissingField indicates a required tool argument was absent.
	ErrMissingField = errors.New("tools: missing required field")

	// ErrMalformedArguments indicates the arguments were not valid JSON.
	ErrMalformedArguments = errors.New("tools: malformed arguments")
)

// ArgumentError is a problem with the arguments of one tool invocation.
// It is reported back for that call only; the session keeps running.
type ArgumentError struct {
	Tool  string
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tools: %s: argument %q: %v", e.Tool, e.Field, e.Err)
	}
	return fmt.Sprintf("tools: %s: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// IsArgumentError reports whether err is (or wraps) an ArgumentError.
func IsArgumentError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr)
}
