/*
errors.go - Centralized error types for the discipline engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinel with errors.Is and read details from the
  structured types with errors.As.

ERROR CATEGORIES:
  1. Validation errors - missing or malformed input, rejected before storage
  2. Not-found errors  - employee, category or record absent
  3. Permission errors - actor not allowed to create/edit/void/view
  4. State errors      - mutation attempted on a finalized record
  5. Collaborator errors - audit/notification/email delivery failures

Collaborator failures never fail a committed write. They are reported back as
warnings by the notify package.

SEE ALSO:
  - lifecycle.go: Produces validation, permission and state errors
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is the parent of every not-found error below.
	ErrNotFound = errors.New("not found")

	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("violation category %w", ErrNotFound)
	ErrRecordNotFound   = fmt.Errorf("corrective action %w", ErrNotFound)

	// ErrPermissionDenied is returned when the actor's role or scope forbids the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState is returned when a finalized record is mutated.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrCollaborator is returned by delivery adapters (audit, notification, email).
	ErrCollaborator = errors.New("collaborator failure")

	// ErrInvalidCatalog is returned when seeded reference data breaks its invariants.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// PermissionError records who tried what.
type PermissionError struct {
	ActorID ActorID
	Role    Role
	Op      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s (role %s) may not %s", e.ActorID, e.Role, e.Op)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// StateError is returned when an operation is not allowed in the record's status.
type StateError struct {
	RecordID RecordID
	Status   ActionStatus
	Op       string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a finalized record: %s is %s", e.Op, e.RecordID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidCatalog)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPermission(err error) bool { return errors.Is(err, ErrPermissionDenied) }
func IsState(err error) bool      { return errors.Is(err, ErrInvalidState) }
