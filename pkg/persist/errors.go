package persist

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrNotConfigured indicates the gateway has no backing store
	ErrNotConfigured = errors.New("persistence not configured")
)

// CapabilityError indicates a schema object the gateway depends on is
// missing from the external store. Callers degrade gracefully instead
// of treating this as an outage.
type CapabilityError struct {
	Object string // table or function name
	Kind   string // "table" or "function"
	Err    error
}

// Error returns formatted error message
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("missing %s %q: %v", e.Kind, e.Object, e.Err)
}

// Unwrap returns the underlying error
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// NewCapabilityError creates a capability error for a missing schema object
func NewCapabilityError(kind, object string, err error) *CapabilityError {
	return &CapabilityError{Kind: kind, Object: object, Err: err}
}

// IsCapability reports whether err signals a missing table or function.
func IsCapability(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
