package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

func executionExecutor(t *testing.T) *fsm.Executor[*Execution, ExecutionStatus] {
	t.Helper()
	hooks, err := ExecutionHooksBuilder(func() time.Time { return fixedNow }).Build()
	require.NoError(t, err)
	exec, err := fsm.NewExecutorBuilder(ExecutionMachineName, ExecutionGraph(), hooks).
		WithLogger(testutil.DiscardLogger()).
		Build()
	require.NoError(t, err)
	return exec
}

// ===========================================================================
// Graph
// ===========================================================================

func TestExecutionGraph(t *testing.T) {
	t.Parallel()
	g := ExecutionGraph()
	assert.Same(t, g, ExecutionGraph())
	assert.Equal(t, ExecutionStatusPending, g.Initial())
	assert.Equal(t, []ExecutionStatus{ExecutionStatusRunning, ExecutionStatusCanceled}, g.Targets(ExecutionStatusPending))
	assert.Equal(t, []ExecutionStatus{
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCanceled,
		ExecutionStatusTimeout,
	}, g.Targets(ExecutionStatusRunning))

	assert.False(t, g.Allows(ExecutionStatusPending, ExecutionStatusCompleted))
	assert.False(t, g.Allows(ExecutionStatusCompleted, ExecutionStatusRunning))
	assert.True(t, g.IsAllowed("", false, ExecutionStatusRunning))
}

// ===========================================================================
// Lifecycle
// ===========================================================================

// TestExecutionLifecycle_Completed runs pending -> running -> completed and
// checks that the before hooks stamp the start and end times.
func TestExecutionLifecycle_Completed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	machine := executionExecutor(t)
	exec := mustNewExecution(t, "user-1", "index documents", "staging")

	running, err := machine.Transition(ctx, exec, ExecutionStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusRunning, running.Status)
	require.NotNil(t, running.StartTime)
	assert.Equal(t, fixedNow, *running.StartTime)
	assert.Nil(t, running.EndTime)

	done, err := machine.Transition(ctx, running, ExecutionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, done.Status)
	require.NotNil(t, done.EndTime)
	assert.Equal(t, fixedNow, *done.EndTime)
	assert.True(t, done.IsTerminal())
	assert.Empty(t, machine.AvailableTargets(done))

	assert.Equal(t, ExecutionStatusPending, exec.Status, "input must not be modified")
	assert.Nil(t, exec.StartTime)
}

// TestExecutionLifecycle_CompletedWithErrorBlocked verifies that the guard
// on completed refuses an execution carrying an error message, while
// failed remains available.
func TestExecutionLifecycle_CompletedWithErrorBlocked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	machine := executionExecutor(t)
	exec := mustNewExecution(t, "user-1", "index documents", "staging")

	running, err := machine.Transition(ctx, exec, ExecutionStatusRunning)
	require.NoError(t, err)
	running.ErrorMessage = "disk full"

	out, err := machine.Transition(ctx, running, ExecutionStatusCompleted)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, fsm.IsBlockedByGuard(err))
	testutil.AssertErrorCode(t, err, sserr.CodeTransitionBlocked)

	failed, err := machine.Transition(ctx, running, ExecutionStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, failed.Status)
	assert.NotNil(t, failed.EndTime)
}

// TestExecutionLifecycle_PendingCanceled verifies that a pending execution
// may be canceled without ever starting.
func TestExecutionLifecycle_PendingCanceled(t *testing.T) {
	t.Parallel()
	machine := executionExecutor(t)
	exec := mustNewExecution(t, "user-1", "index documents", "staging")

	out, err := machine.Transition(context.Background(), exec, ExecutionStatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCanceled, out.Status)
	assert.Nil(t, out.StartTime)
	require.NotNil(t, out.EndTime)
	assert.Zero(t, out.Duration())
}

func TestExecutionLifecycle_NotDeclared(t *testing.T) {
	t.Parallel()
	machine := executionExecutor(t)
	exec := mustNewExecution(t, "user-1", "index documents", "staging")

	_, err := machine.Transition(context.Background(), exec, ExecutionStatusTimeout)
	require.Error(t, err)
	assert.True(t, fsm.IsNotDeclared(err))

	exec.Status = ExecutionStatusCompleted
	_, err = machine.Transition(context.Background(), exec, ExecutionStatusRunning)
	assert.True(t, fsm.IsNotDeclared(err))
}

// TestExecutionLifecycle_NilExecution verifies that a nil execution is
// rejected by the lifecycle hooks with a validation cause instead of
// panicking inside the pipeline.
func TestExecutionLifecycle_NilExecution(t *testing.T) {
	t.Parallel()
	machine := executionExecutor(t)

	for _, target := range []ExecutionStatus{ExecutionStatusRunning, ExecutionStatusCanceled} {
		out, err := machine.Transition(context.Background(), nil, target)
		require.Error(t, err, target)
		assert.Nil(t, out)
		assert.True(t, fsm.IsHookFailure(err), target)
		hook, ok := fsm.FailedHook(err)
		require.True(t, ok)
		assert.Equal(t, fsm.HookBefore, hook)

		var panicErr *fsm.PanicError
		assert.False(t, errors.As(err, &panicErr), "hook must not panic")
		assert.Contains(t, err.Error(), "models: execution is nil")
	}
}

func TestExecution_NilReceiver(t *testing.T) {
	t.Parallel()
	var e *Execution
	assert.Empty(t, e.Key())

	out := e.WithState(ExecutionStatusRunning)
	require.NotNil(t, out)
	assert.Equal(t, ExecutionStatusRunning, out.Status)
	assert.Empty(t, out.ID)
}

// TestExecutionHooks_Registrations checks which hooks are overridden.
func TestExecutionHooks_Registrations(t *testing.T) {
	t.Parallel()
	hooks, err := ExecutionHooks()
	require.NoError(t, err)

	assert.True(t, hooks.Implements(fsm.HookGuard, ExecutionStatusCompleted))
	assert.False(t, hooks.Implements(fsm.HookGuard, ExecutionStatusFailed))
	assert.True(t, hooks.Implements(fsm.HookBefore, ExecutionStatusRunning))
	for _, s := range []ExecutionStatus{
		ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCanceled, ExecutionStatusTimeout,
	} {
		assert.True(t, hooks.Implements(fsm.HookBefore, s), s)
		assert.False(t, hooks.Implements(fsm.HookPersist, s), s)
	}
	assert.False(t, hooks.Implements(fsm.HookBefore, ExecutionStatusPending))
}

// TestExecutionHooksBuilder_AddPersist verifies that callers can register
// a persist hook on top of the lifecycle hooks.
func TestExecutionHooksBuilder_AddPersist(t *testing.T) {
	t.Parallel()
	var persisted []ExecutionStatus
	hooks, err := ExecutionHooksBuilder(nil).
		Persist(ExecutionStatusRunning, func(_ context.Context, e *Execution, target ExecutionStatus) (*Execution, error) {
			persisted = append(persisted, target)
			return e.WithState(target), nil
		}).
		Build()
	require.NoError(t, err)

	exec := mustNewExecution(t, "user-1", "index documents", "staging")
	out, err := fsm.Transition(context.Background(), exec, ExecutionGraph(), hooks, ExecutionStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusRunning, out.Status)
	assert.Equal(t, []ExecutionStatus{ExecutionStatusRunning}, persisted)
	assert.NotNil(t, out.StartTime)

	_, err = ExecutionHooksBuilder(nil).
		Before(ExecutionStatusRunning, func(_ context.Context, e *Execution, _ ExecutionStatus) (*Execution, error) {
			return e, nil
		}).
		Build()
	testutil.AssertErrorCode(t, err, sserr.CodeValidationDuplicate)
}
