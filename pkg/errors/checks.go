package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error.
// Returns the Error and true if successful, nil and false otherwise.
// This function traverses the error chain using errors.As, so it returns
// the outermost *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error.
// If the error is not an *Error or is nil, returns an empty string.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode checks if an error has the specified error code.
// Returns false if the error is nil or not an *Error.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// hasCategory reports whether the outermost *Error in the chain belongs to
// the given code category.
func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation checks if the error is a validation error (VAL_xxx).
func IsValidation(err error) bool {
	return hasCategory(err, "VAL")
}

// IsAuthentication checks if the error is an authentication error (AUTH_xxx).
func IsAuthentication(err error) bool {
	return hasCategory(err, "AUTH")
}

// IsNotFound checks if the error is a not found error (NF_xxx).
func IsNotFound(err error) bool {
	return hasCategory(err, "NF")
}

// IsConflict checks if the error is a conflict error (CONF_xxx).
func IsConflict(err error) bool {
	return hasCategory(err, "CONF")
}

// IsInternal checks if the error is an internal error (INT_xxx).
func IsInternal(err error) bool {
	return hasCategory(err, "INT")
}

// IsUnavailable checks if the error is a service unavailable error (UNAVAIL_xxx).
func IsUnavailable(err error) bool {
	return hasCategory(err, "UNAVAIL")
}

// IsTimeout checks if the error is a timeout error (TIMEOUT_xxx).
func IsTimeout(err error) bool {
	return hasCategory(err, "TIMEOUT")
}

// IsTransition checks if the error is a transition outcome (FSM_xxx).
//
// Example:
//
//	if errors.IsTransition(err) {
//	    // the state machine rejected or failed the transition
//	}
func IsTransition(err error) bool {
	return hasCategory(err, "FSM")
}

// IsRetryable checks if the error is potentially retryable.
// Timeout and unavailable errors are considered retryable. Transition
// errors are never retryable as-is: retrying the same target from the
// same state yields the same outcome.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}

// IsClientError checks if the error maps to a 4xx HTTP status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	status := e.HTTPStatus()
	return status >= 400 && status < 500
}

// IsServerError checks if the error maps to a 5xx HTTP status.
func IsServerError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.HTTPStatus() >= 500
}
