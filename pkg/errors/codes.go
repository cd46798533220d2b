package errors

import "strings"

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., VAL, FSM, INT) and XXX is a three-digit numeric code.
// Codes are stable once assigned.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
//	FSM_xxx     - Transition outcomes (409 or 500, see Error.HTTPStatus)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationDuplicate indicates a value was declared more than once,
	// such as a repeated state or a second hook for the same target.
	CodeValidationDuplicate Code = "VAL_004"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the credential has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates the credential is malformed or
	// its signature, issuer or audience does not verify.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundResource indicates the requested resource was not found.
	CodeNotFoundResource Code = "NF_003"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictVersionMismatch indicates an optimistic locking failure:
	// the stored state no longer matches the state the caller read.
	CodeConflictVersionMismatch Code = "CONF_003"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"

	// CodeTransitionNotDeclared indicates the requested target state is not
	// reachable from the effective current state.
	CodeTransitionNotDeclared Code = "FSM_001"

	// CodeTransitionBlocked indicates a guard hook returned false.
	CodeTransitionBlocked Code = "FSM_002"

	// CodeTransitionHookFailed indicates an implemented hook returned an
	// error or panicked. The hook's error is the Cause.
	CodeTransitionHookFailed Code = "FSM_003"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "FSM").
func (c Code) Category() string {
	s := string(c)
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[:i]
	}
	return s
}
