package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
//
// Example:
//
//	err := errors.New(errors.CodeValidation, "graph must declare at least one state")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrap returns nil.
//
// Example:
//
//	tag, err := tx.Exec(ctx, sql, args...)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "postgres: state update failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// FromError returns the outermost *Error in the chain of err, or err
// wrapped as [CodeInternal] when the chain has none. Transports use it to
// pick a status for arbitrary errors.
//
// Example:
//
//	status := errors.FromError(err).HTTPStatus()
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
