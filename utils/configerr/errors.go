// Package configerr defines the configuration error taxonomy shared by the
// bootstrapper, the network assembler and the launcher.
//
// Every error in this package is fatal at bootstrap and names the offending
// configuration field(s), so an operator can fix the exact key. All of them
// match ErrInvalidConfiguration through errors.Is, which lets the launcher
// tell configuration mistakes apart from resource failures.
package configerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidConfiguration is the common ancestor of every configuration error.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// MissingFieldError reports a mandatory field that was not set.
type MissingFieldError struct {
	Field   string
	Message string
}

// Missing returns a MissingFieldError with the default message.
func Missing(field string) *MissingFieldError {
	return &MissingFieldError{Field: field}
}

func (e *MissingFieldError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (field: %s)", e.Message, e.Field)
	}
	return "missing configuration field: " + e.Field
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrInvalidConfiguration }

// ConflictError reports two fields that cannot be set together, or that
// hold values which contradict each other.
type ConflictError struct {
	Field      string
	OtherField string
	Message    string
}

// Conflict returns a ConflictError for the two given fields.
func Conflict(field, otherField, message string) *ConflictError {
	return &ConflictError{Field: field, OtherField: otherField, Message: message}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting configuration fields %s and %s: %s", e.Field, e.OtherField, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrInvalidConfiguration }

// InvalidFieldError reports a field holding a value that cannot be used.
type InvalidFieldError struct {
	Field string
	Value string
	Cause error
}

// Invalid returns an InvalidFieldError wrapping cause (which may be nil).
func Invalid(field, value string, cause error) *InvalidFieldError {
	return &InvalidFieldError{Field: field, Value: value, Cause: cause}
}

func (e *InvalidFieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid value %q for configuration field %s: %v", e.Value, e.Field, e.Cause)
	}
	return fmt.Sprintf("invalid value %q for configuration field %s", e.Value, e.Field)
}

func (e *InvalidFieldError) Unwrap() error { return e.Cause }

func (e *InvalidFieldError) Is(target error) bool { return target == ErrInvalidConfiguration }
