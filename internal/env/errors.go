package env

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Kind categorizes diagnostic failures.
type Kind string

const (
	// KindConfiguration indicates invalid harness input: an unknown policy,
	// empty reducer input, a zero-length dimension.
	KindConfiguration Kind = "CONFIGURATION_ERROR"

	// KindInteraction indicates reset, step, render or close failed on a
	// handle. Fatal to the current check.
	KindInteraction Kind = "ENVIRONMENT_INTERACTION_ERROR"

	// KindValidation indicates a contract violation observed in the data.
	// Soft: recorded in reports, never aborts a run.
	KindValidation Kind = "VALIDATION_MISMATCH"

	// KindResource indicates an encoding sink or artifact write failure.
	KindResource Kind = "RESOURCE_ERROR"
)

// Error is the error type shared by all diagnostics.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Op names the failing operation (e.g., "reset", "step", "encode").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the raw cause, if any.
	Err error

	// Trace is the goroutine stack captured where the failure was detected.
	// Only set for interaction errors.
	Trace string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Op != "" {
		msg = e.Op + " failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the raw cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking environment call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewConfigurationError creates a configuration error for op.
func NewConfigurationError(op, message string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

// NewValidationError creates a validation mismatch error.
func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// WrapInteraction wraps a failure raised by environment operation op.
// Errors that already are interaction errors are returned unchanged so the
// original trace is preserved.
func WrapInteraction(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsInteraction(err) {
		return err
	}
	return &Error{
		Kind:    KindInteraction,
		Op:      op,
		Message: op + " failed",
		Err:     err,
		Trace:   string(debug.Stack()),
	}
}

// WrapResource wraps a sink or artifact failure raised by op.
func WrapResource(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindResource, Op: op, Message: op + " failed", Err: err}
}

// NewResourceError creates a resource error without an underlying cause.
func NewResourceError(op, message string) *Error {
	return &Error{Kind: KindResource, Op: op, Message: message}
}

// Interact runs fn as environment operation op. Returned errors become
// interaction errors and panics are recovered into interaction errors whose
// cause is a *PanicError.
func Interact(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Kind:    KindInteraction,
				Op:      op,
				Message: op + " panicked",
				Err:     &PanicError{Value: r},
				Trace:   string(debug.Stack()),
			}
		}
	}()
	return WrapInteraction(op, fn())
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsInteraction reports whether err is an environment interaction error.
func IsInteraction(err error) bool { return KindOf(err) == KindInteraction }

// IsValidation reports whether err is a validation mismatch.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsResource reports whether err is a resource error.
func IsResource(err error) bool { return KindOf(err) == KindResource }

// IsHard reports whether err aborts the operation that produced it.
// Everything except validation mismatches is hard.
func IsHard(err error) bool {
	return err != nil && !IsValidation(err)
}

// RootCause unwraps err down to the innermost cause.
func RootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// TraceOf returns the captured stack of the first interaction error in the
// chain of err.
func TraceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Trace
	}
	return ""
}
