package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidAddress is returned by geocoders when an address resolves to
// nothing. Distinct from transport failures so callers can report it as the
// user's mistake rather than an outage.
var ErrInvalidAddress = errors.New("address could not be geocoded")

// ValidationError reports malformed caller input. Surfaced synchronously,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports an absent referenced entity. Aborts the current
// operation; triggers no cleanup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFoundError builds a NotFoundError for the given entity kind and ID.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// ExternalDependencyError wraps a failure of an external collaborator
// (geocoder, incident feed). Surfaced to the caller on synchronous paths;
// downgraded to logged-and-skipped during notification fan-out.
type ExternalDependencyError struct {
	Dependency string
	Err        error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }

// NewExternalError wraps err as a failure of the named dependency.
func NewExternalError(dependency string, err error) error {
	return &ExternalDependencyError{Dependency: dependency, Err: err}
}

// IsExternal reports whether err is (or wraps) an ExternalDependencyError.
func IsExternal(err error) bool {
	var ede *ExternalDependencyError
	return errors.As(err, &ede)
}
