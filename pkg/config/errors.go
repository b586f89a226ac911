package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required env var is unset
	ErrMissingRequiredField = errors.New("missing required setting")

	// ErrInvalidValue indicates an env var has an unparseable value
	ErrInvalidValue = errors.New("invalid setting value")
)

// ValidationError wraps configuration validation errors with the
// offending env var name.
type ValidationError struct {
	Key string
	Err error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(key string, err error) *ValidationError {
	return &ValidationError{Key: key, Err: err}
}
