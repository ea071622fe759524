/*
errors.go - Error types for the data-access layer

ERROR CATEGORIES:
  1. Scope errors - no sector given
  2. Validation errors - records that must not reach the engine
  3. Lookup errors - missing records

The engine itself never returns errors; everything here is raised while
loading or storing its inputs.
*/
package loader

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSectorRequired is returned when a load or write has no sector scope.
	ErrSectorRequired = errors.New("sector id required")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Record string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) || errors.Is(err, ErrSectorRequired)
}
