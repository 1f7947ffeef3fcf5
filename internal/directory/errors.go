package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the service reports that a group does not exist.
	// The id is permanently invalid.
	ErrNotFound = errors.New("group not found")

	// ErrTransient is returned for transport failures, unexpected status codes and
	// malformed payloads. The validity of the requested id is unknown.
	ErrTransient = errors.New("transient directory failure")
)

// StatusError describes a non-200 response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	// Message is the first error message of the response body, if any.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
}

// SchemaError describes a payload that is missing a required field.
type SchemaError struct {
	Endpoint string
	Field    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: invalid payload: missing or invalid field '%s'", e.Endpoint, e.Field)
}

func notFound(cause error) error {
	return fmt.Errorf("%w: %w", ErrNotFound, cause)
}

func transient(cause error) error {
	return fmt.Errorf("%w: %w", ErrTransient, cause)
}

// IsNotFound reports whether err means the requested group does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
