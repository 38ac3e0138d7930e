// Package shared contains the error taxonomy and small value objects used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, checked with errors.Is().
var (
	// ErrNotFound: a referenced user, step, figure, group or validation does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidArgument: malformed input such as a negative limit,
	// an unknown scope or misordered thresholds.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict: a uniqueness violation on validation insertion. It never
	// leaves the application layer; EnsureValidated recovers it.
	ErrConflict = errors.New("conflict")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "attempt", "validation", "leaderboard"
	Op      string // operation that failed, e.g. "Record", "Query"
	Kind    error  // base error kind for errors.Is()
	Message string // human-readable message, safe to show to API clients
	Err     error  // underlying error (optional)

	// Entity and ID name the offending record for NotFound errors.
	Entity string
	ID     any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching on the kind and the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NotFound reports a missing entity, e.g. NotFound("attempt", "Record", "step", 42)
// reads "step 42 not found".
func NotFound(domain, op, entity string, id any) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, id),
		Entity:  entity,
		ID:      id,
	}
}

// InvalidArgument reports a rejected argument value.
func InvalidArgument(domain, op, argument string, value any, reason string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrInvalidArgument,
		Message: fmt.Sprintf("invalid %s %v: %s", argument, value, reason),
		Entity:  argument,
		ID:      value,
	}
}

// Conflict reports a uniqueness violation detected by storage.
func Conflict(domain, op, message string, err error) *DomainError {
	return WrapError(domain, op, ErrConflict, message, err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument checks if the error is an invalid argument error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsConflict checks if the error is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// PublicMessage returns the client-safe message of a domain error, or ""
// when err carries none.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
