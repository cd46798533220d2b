// Package errors provides the structured error type shared by every
// package in the StricklySoft state machine SDK. Errors carry a stable,
// machine-readable code, a human-readable message, an optional cause and
// optional structured details.
//
// # Error Categories
//
//   - Validation errors (VAL): malformed graph or hook declarations, bad config
//   - NotFound errors (NF): unknown entities in a state store
//   - Conflict errors (CONF): compare-and-set failures in a state store
//   - Internal errors (INT): unexpected failures, database errors
//   - Unavailable errors (UNAVAIL): a state store cannot be reached
//   - Timeout errors (TIMEOUT): a state store call exceeded its deadline
//   - Transition errors (FSM): the closed outcome taxonomy of a transition
//
// # Transition Errors
//
// The FSM category is closed. A failed transition always carries exactly
// one of [CodeTransitionNotDeclared], [CodeTransitionBlocked] or
// [CodeTransitionHookFailed]. Hook failures keep the hook's own error as
// [Error.Cause], so callers can still reach it with errors.Is and
// errors.As:
//
//	_, err := machine.Transition(ctx, exec, models.ExecutionStatusRunning)
//	switch {
//	case errors.HasCode(err, errors.CodeTransitionNotDeclared):
//	    // pick another target
//	case errors.IsTransition(err):
//	    logger.Error("transition failed", "code", errors.GetCode(err), "error", err)
//	}
package errors
