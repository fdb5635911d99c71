package orm

import (
	"errors"
	"fmt"
)

// InvalidArgumentError is returned for entities a repository cannot save:
// nil, of another type, or without an identifier value.
type InvalidArgumentError struct {
	Type    string
	Message string
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("invalid argument: %s", e.Message)
	}
	return fmt.Sprintf("invalid argument: %s: %s", e.Type, e.Message)
}

// TypeError is returned when an indexed value cannot be turned into a
// score. The record write may already have happened.
type TypeError struct {
	Type     string
	Property string
	Index    string
	Value    any
	Message  string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: %s.%s (index %q): %s, got %T",
		e.Type, e.Property, e.Index, e.Message, e.Value)
}

// IsInvalidArgument reports whether err is or wraps an *InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// IsTypeError reports whether err is or wraps a *TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}
