package meta

import (
	"errors"
	"fmt"
)

// MetadataError reports an entity type whose metadata cannot be resolved:
// an unregistered type, zero or several identifier properties, or an
// invalid registration.
type MetadataError struct {
	Type     string
	Property string
	Message  string
}

// Error implements the error interface.
func (e *MetadataError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("metadata: %s.%s: %s", e.Type, e.Property, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("metadata: %s: %s", e.Type, e.Message)
	}
	return "metadata: " + e.Message
}

// IsMetadataError reports whether err is or wraps a *MetadataError.
func IsMetadataError(err error) bool {
	var me *MetadataError
	return errors.As(err, &me)
}
