// Package errors provides error handling for Vigil.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrValidation) {
//	    // reject before mutating anything
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	GetAllDetails = crdb.GetAllDetails
	GetAllHints   = crdb.GetAllHints
)

// Sentinel errors for the monitoring core's failure taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrValidation indicates malformed schedule or preference input.
	// Rejected before any mutation and surfaced to the caller.
	ErrValidation = New("validation failed")

	// ErrCollaborator indicates a source, enrichment, classifier, or
	// dispatch failure. Always caught at the component boundary and
	// degraded to a fallback or skip, never propagated further.
	ErrCollaborator = New("collaborator failed")

	// ErrStructural indicates a run could not do meaningful work at all
	// (no resolvable target entities, or every entity failed). This is
	// the only error class that marks a run failed.
	ErrStructural = New("structural failure")

	// ErrConsistency indicates a duplicate-fingerprint race or an invalid
	// state transition. Rejected at the data layer, retried once, then
	// logged as a run-level anomaly without aborting other entities.
	ErrConsistency = New("consistency violation")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// IsValidation checks if an error is or wraps ErrValidation
func IsValidation(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsCollaborator checks if an error is or wraps ErrCollaborator
func IsCollaborator(err error) bool {
	return err != nil && Is(err, ErrCollaborator)
}

// IsStructural checks if an error is or wraps ErrStructural
func IsStructural(err error) bool {
	return err != nil && Is(err, ErrStructural)
}

// IsConsistency checks if an error is or wraps ErrConsistency
func IsConsistency(err error) bool {
	return err != nil && Is(err, ErrConsistency)
}

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// NewStructuralError creates a structural error with a formatted message
func NewStructuralError(format string, args ...interface{}) error {
	return Wrap(ErrStructural, Newf(format, args...).Error())
}

// WrapCollaborator marks an error as a collaborator failure with context.
// The underlying error stays in the cause chain, so Is/As still reach it.
func WrapCollaborator(err error, context string) error {
	return Mark(Wrap(err, context), ErrCollaborator)
}
