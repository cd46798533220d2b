package fsm

import (
	"fmt"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// ErrorKind is the closed classification of a failed transition.
type ErrorKind int

const (
	// KindNone means the error is nil or not a transition outcome.
	KindNone ErrorKind = iota

	// KindNotDeclared means the graph does not allow the requested move
	// from the effective current state.
	KindNotDeclared

	// KindBlockedByGuard means the resolved guard returned false.
	KindBlockedByGuard

	// KindHookFailure means an implemented hook returned an error or
	// panicked. The hook's error is the cause.
	KindHookFailure
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotDeclared:
		return "not_declared"
	case KindBlockedByGuard:
		return "blocked_by_guard"
	case KindHookFailure:
		return "hook_failure"
	default:
		return "none"
	}
}

// Error detail keys attached to every transition error.
const (
	DetailMachine = "machine"
	DetailFrom    = "from"
	DetailTo      = "to"
	DetailStage   = "stage"
	DetailHook    = "hook"
)

// KindOf classifies err by the code of the outermost platform error in its
// chain. Errors that are not transition outcomes yield [KindNone].
func KindOf(err error) ErrorKind {
	switch sserr.GetCode(err) {
	case sserr.CodeTransitionNotDeclared:
		return KindNotDeclared
	case sserr.CodeTransitionBlocked:
		return KindBlockedByGuard
	case sserr.CodeTransitionHookFailed:
		return KindHookFailure
	default:
		return KindNone
	}
}

// IsNotDeclared reports whether err is a [KindNotDeclared] outcome.
func IsNotDeclared(err error) bool { return KindOf(err) == KindNotDeclared }

// IsBlockedByGuard reports whether err is a [KindBlockedByGuard] outcome.
func IsBlockedByGuard(err error) bool { return KindOf(err) == KindBlockedByGuard }

// IsHookFailure reports whether err is a [KindHookFailure] outcome.
func IsHookFailure(err error) bool { return KindOf(err) == KindHookFailure }

// FailedHook returns the kind of hook that failed when err is a
// [KindHookFailure] outcome.
func FailedHook(err error) (HookKind, bool) {
	if !IsHookFailure(err) {
		return "", false
	}
	e, _ := sserr.AsError(err)
	v, ok := e.Detail(DetailHook)
	if !ok {
		return "", false
	}
	kind, ok := v.(HookKind)
	return kind, ok
}

// PanicError is the cause of a hook failure produced by a panicking hook.
// It keeps the recovered value and the stack at the point of the panic.
// When the recovered value is itself an error (a runtime.Error for a nil
// dereference, for example), Unwrap returns it.
type PanicError struct {
	Hook  HookKind
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("fsm: %s hook panicked: %v", e.Hook, e.Value)
}

// Unwrap returns the recovered value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
