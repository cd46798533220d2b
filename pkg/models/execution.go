// Package models defines the domain records driven by the state machine
// engine in [github.com/StricklySoft/stricklysoft-fsm/pkg/fsm].
//
// Execution Model:
//
// The [Execution] type tracks a single unit of work from submission to a
// final outcome. It implements [fsm.Transitionable], so every status
// change goes through an [fsm.Executor] built from [ExecutionGraph] and
// [ExecutionHooks]:
//
//	pending → running → completed
//	        ↓         → failed
//	     canceled     → canceled
//	                  → timeout
//
// Once an execution reaches a terminal state (completed, failed, canceled,
// timeout), the graph declares no further transitions out of it.
package models

import (
	"maps"
	"time"

	"github.com/google/uuid"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// ExecutionSchemaVersion identifies the current schema version of the
// Execution model. Increment this when making breaking changes to the
// struct fields or serialization format.
const ExecutionSchemaVersion = 2

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	// ExecutionStatusPending indicates the execution has been created but
	// has not yet started. This is the initial state of [ExecutionGraph].
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusRunning indicates the execution is being processed.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusCompleted indicates the execution finished
	// successfully. Terminal.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed indicates the execution could not complete.
	// The error details are recorded in [Execution.ErrorMessage]. Terminal.
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusCanceled indicates the execution was canceled before
	// completion. Terminal.
	ExecutionStatusCanceled ExecutionStatus = "canceled"

	// ExecutionStatusTimeout indicates the execution exceeded its time
	// limit. Terminal.
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

// String returns the string representation of the execution status.
func (s ExecutionStatus) String() string {
	return string(s)
}

// Valid reports whether the execution status is one of the recognized values.
func (s ExecutionStatus) Valid() bool {
	return ExecutionGraph().Has(s)
}

// IsTerminal reports whether this status is a declared state with no
// outgoing transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return ExecutionGraph().Terminal(s)
}

// Execution is a single tracked unit of work.
//
// Status is owned by the state machine: callers move it with an
// [fsm.Executor] rather than assigning it. The other fields may be updated
// by hooks or by the caller between transitions.
type Execution struct {
	// ID is the unique identifier for this execution (UUID v4).
	ID string `json:"id" db:"id"`

	// IdentityID is the identity (user or service) that submitted the
	// execution.
	IdentityID string `json:"identity_id" db:"identity_id"`

	// Intent describes what the execution was asked to do.
	Intent string `json:"intent" db:"intent"`

	// Status is the current lifecycle state. Empty means the record has
	// not been placed in the machine yet and is treated as pending.
	Status ExecutionStatus `json:"status" db:"status"`

	// StartTime is stamped when the execution enters running.
	StartTime *time.Time `json:"start_time,omitempty" db:"start_time"`

	// EndTime is stamped when the execution enters a terminal state.
	EndTime *time.Time `json:"end_time,omitempty" db:"end_time"`

	// Namespace is the deployment environment the execution belongs to.
	Namespace string `json:"namespace" db:"namespace"`

	// ErrorMessage contains the failure details. An execution carrying an
	// error message cannot be completed.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// Metadata is an extensible key-value store for caller data.
	Metadata map[string]any `json:"metadata" db:"metadata"`

	// CreatedAt is the UTC timestamp when the record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the UTC timestamp of the last status change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var _ fsm.Transitionable[*Execution, ExecutionStatus] = (*Execution)(nil)

// NewExecution creates a pending Execution with a generated UUID and UTC
// timestamps. The metadata map is initialized to an empty map.
//
// Returns a validation error if identityID, intent or namespace is empty.
func NewExecution(identityID, intent, namespace string) (*Execution, error) {
	if identityID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "models: execution identityID must not be empty")
	}
	if intent == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "models: execution intent must not be empty")
	}
	if namespace == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "models: execution namespace must not be empty")
	}

	now := time.Now().UTC()
	return &Execution{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Intent:     intent,
		Status:     ExecutionStatusPending,
		Namespace:  namespace,
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Key returns the identifier under which stores persist the execution.
func (e *Execution) Key() string {
	if e == nil {
		return ""
	}
	return e.ID
}

// CurrentState returns the execution status, or false when Status is empty.
func (e *Execution) CurrentState() (ExecutionStatus, bool) {
	if e == nil || e.Status == "" {
		return "", false
	}
	return e.Status, true
}

// WithState returns a copy of the execution with Status set to s and
// UpdatedAt refreshed. The receiver is not modified. A nil execution is
// not a valid input; WithState treats it as an empty one.
func (e *Execution) WithState(s ExecutionStatus) *Execution {
	out := e.clone()
	out.Status = s
	out.UpdatedAt = time.Now().UTC()
	return out
}

// clone returns a copy that shares no mutable state with e.
func (e *Execution) clone() *Execution {
	if e == nil {
		return &Execution{}
	}
	out := *e
	out.Metadata = maps.Clone(e.Metadata)
	if e.StartTime != nil {
		t := *e.StartTime
		out.StartTime = &t
	}
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	return &out
}

// Validate checks that all required fields are present and that the status
// is a recognized value. Returns the first validation error encountered.
func (e *Execution) Validate() error {
	if e.ID == "" {
		return sserr.New(sserr.CodeValidationRequired, "models: execution ID is required")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return sserr.Wrapf(err, sserr.CodeValidationFormat, "models: execution ID %q is not a UUID", e.ID)
	}
	if e.IdentityID == "" {
		return sserr.New(sserr.CodeValidationRequired, "models: execution identity ID is required")
	}
	if e.Intent == "" {
		return sserr.New(sserr.CodeValidationRequired, "models: execution intent is required")
	}
	if e.Namespace == "" {
		return sserr.New(sserr.CodeValidationRequired, "models: execution namespace is required")
	}
	if e.Status != "" && !e.Status.Valid() {
		return sserr.Newf(sserr.CodeValidation, "models: invalid execution status %q", e.Status)
	}
	if e.CreatedAt.IsZero() {
		return sserr.New(sserr.CodeValidationRequired, "models: execution created_at is required")
	}
	if e.UpdatedAt.IsZero() {
		return sserr.New(sserr.CodeValidationRequired, "models: execution updated_at is required")
	}
	if e.StartTime != nil && e.EndTime != nil && e.EndTime.Before(*e.StartTime) {
		return sserr.New(sserr.CodeValidation, "models: execution end_time is before start_time")
	}
	return nil
}

// IsTerminal reports whether the execution has reached a final state.
func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// Duration returns the wall-clock duration of the execution. For a running
// execution the duration is measured up to now. Returns zero if the
// execution never started.
func (e *Execution) Duration() time.Duration {
	if e.StartTime == nil {
		return 0
	}
	if e.EndTime != nil {
		return e.EndTime.Sub(*e.StartTime)
	}
	return time.Since(*e.StartTime)
}
