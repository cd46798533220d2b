package models

import (
	"context"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// ExecutionMachineName is the machine name reported in logs, spans and
// transition errors for executions.
const ExecutionMachineName = "executions"

var executionGraph = sync.OnceValue(func() *fsm.Graph[ExecutionStatus] {
	g, err := fsm.NewGraphBuilder[ExecutionStatus]().
		State(
			ExecutionStatusPending,
			ExecutionStatusRunning,
			ExecutionStatusCompleted,
			ExecutionStatusFailed,
			ExecutionStatusCanceled,
			ExecutionStatusTimeout,
		).
		Transition(ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCanceled).
		Transition(ExecutionStatusRunning,
			ExecutionStatusCompleted,
			ExecutionStatusFailed,
			ExecutionStatusCanceled,
			ExecutionStatusTimeout,
		).
		Build()
	if err != nil {
		panic(err)
	}
	return g
})

// ExecutionGraph returns the execution lifecycle graph. The graph is built
// once and shared.
func ExecutionGraph() *fsm.Graph[ExecutionStatus] {
	return executionGraph()
}

// ExecutionHooksBuilder returns a hooks builder with the execution
// lifecycle hooks already registered:
//
//   - before running: stamp StartTime
//   - before every terminal state: stamp EndTime
//   - guard on completed: refuse executions carrying an ErrorMessage
//
// Every hook rejects a nil execution with [sserr.CodeValidationRequired].
// Callers add persist hooks (see the store packages) before calling
// Build. A nil now uses time.Now.
func ExecutionHooksBuilder(now func() time.Time) *fsm.HooksBuilder[*Execution, ExecutionStatus] {
	if now == nil {
		now = time.Now
	}
	stampEnd := func(_ context.Context, e *Execution, _ ExecutionStatus) (*Execution, error) {
		if e == nil {
			return nil, errNilExecution()
		}
		out := e.clone()
		t := now().UTC()
		out.EndTime = &t
		return out, nil
	}

	b := fsm.NewHooksBuilder[*Execution, ExecutionStatus]().
		Guard(ExecutionStatusCompleted, func(_ context.Context, e *Execution, _ ExecutionStatus) (bool, error) {
			if e == nil {
				return false, errNilExecution()
			}
			return e.ErrorMessage == "", nil
		}).
		Before(ExecutionStatusRunning, func(_ context.Context, e *Execution, _ ExecutionStatus) (*Execution, error) {
			if e == nil {
				return nil, errNilExecution()
			}
			out := e.clone()
			t := now().UTC()
			out.StartTime = &t
			return out, nil
		})
	for _, s := range ExecutionGraph().States() {
		if ExecutionGraph().Terminal(s) {
			b.Before(s, stampEnd)
		}
	}
	return b
}

func errNilExecution() error {
	return sserr.New(sserr.CodeValidationRequired, "models: execution is nil")
}

// ExecutionHooks returns the execution lifecycle hooks with the default
// persist step, which only sets Status on the returned copy.
func ExecutionHooks() (*fsm.Hooks[*Execution, ExecutionStatus], error) {
	return ExecutionHooksBuilder(nil).Build()
}
