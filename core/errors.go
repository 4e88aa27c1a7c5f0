package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// UnavailableError wraps a transient failure of the persistence layer (connection lost, timeout...).
// It is surfaced to the caller as is and never retried.
type UnavailableError struct {
	Err error
}

func NewUnavailableError(err error, msg string) error {
	return &UnavailableError{Err: errors.Wrap(err, msg)}
}

func (err UnavailableError) Error() string {
	return "store unavailable: " + err.Err.Error()
}

func (err UnavailableError) Unwrap() error { return err.Err }

func IsUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*UnavailableError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
