package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/models"
)

type (
	execution  = *models.Execution
	execStatus = models.ExecutionStatus
)

func newPrincipal(t *testing.T, perms ...string) *Principal {
	t.Helper()
	parsed, err := ParsePermissions(perms)
	require.NoError(t, err)
	p, err := NewPrincipal("user-1", IdentityTypeUser, nil, parsed)
	require.NoError(t, err)
	return p
}

func newExecution(t *testing.T) *models.Execution {
	t.Helper()
	e, err := models.NewExecution("user-1", "summarize reports", "default")
	require.NoError(t, err)
	return e
}

// guardedExecutor protects running and canceled with permission guards on
// top of the execution lifecycle hooks.
func guardedExecutor(t *testing.T, observers ...fsm.Observer[execStatus]) *fsm.Executor[execution, execStatus] {
	t.Helper()
	guard := RequirePermission[execution, execStatus]("executions")
	hooks, err := models.ExecutionHooksBuilder(nil).
		Guard(models.ExecutionStatusRunning, guard).
		Guard(models.ExecutionStatusCanceled, guard).
		Build()
	require.NoError(t, err)

	b := fsm.NewExecutorBuilder(models.ExecutionMachineName, models.ExecutionGraph(), hooks).
		WithLogger(testutil.DiscardLogger())
	for _, obs := range observers {
		b = b.OnTransition(obs)
	}
	exec, err := b.Build()
	require.NoError(t, err)
	return exec
}

// ===========================================================================
// RequirePermission
// ===========================================================================

func TestRequirePermission(t *testing.T) {
	t.Parallel()
	guard := RequirePermission[execution, execStatus]("executions")
	e := newExecution(t)

	ok, err := guard(context.Background(), e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.False(t, ok, "anonymous callers are denied")

	ctx := ContextWithIdentity(context.Background(), newPrincipal(t, "executions:running"))
	ok, err = guard(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard(ctx, e, models.ExecutionStatusCanceled)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRequirePermission_Executor drives the execution lifecycle through
// an executor whose transitions are protected by permission guards.
func TestRequirePermission_Executor(t *testing.T) {
	t.Parallel()
	machine := guardedExecutor(t)
	e := newExecution(t)

	_, err := machine.Transition(context.Background(), e, models.ExecutionStatusRunning)
	require.Error(t, err)
	assert.True(t, fsm.IsBlockedByGuard(err))
	testutil.AssertErrorCode(t, err, sserr.CodeTransitionBlocked)

	ctx := ContextWithIdentity(context.Background(), newPrincipal(t, "executions:running"))
	running, err := machine.Transition(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, running.Status)
	assert.NotNil(t, running.StartTime)

	_, err = machine.Transition(ctx, running, models.ExecutionStatusCanceled)
	assert.True(t, fsm.IsBlockedByGuard(err))

	// Unguarded targets need no permission.
	done, err := machine.Transition(ctx, running, models.ExecutionStatusCompleted)
	require.NoError(t, err)
	assert.True(t, done.IsTerminal())
}

// TestRequirePermission_AgentLifecycle verifies the default roles against
// the agent lifecycle: operators may drive agents, runners may not.
func TestRequirePermission_AgentLifecycle(t *testing.T) {
	t.Parallel()
	guard := RequirePermission[lifecycle.Snapshot, lifecycle.State](lifecycle.MachineName)
	hooks, err := fsm.NewHooksBuilder[lifecycle.Snapshot, lifecycle.State]().
		Guard(lifecycle.StateStarting, guard).
		Guard(lifecycle.StateStopping, guard).
		Build()
	require.NoError(t, err)

	principal := func(role string) context.Context {
		p, err := NewPrincipal(role+"-1", IdentityTypeService, nil,
			PermissionsForRoles([]string{role}, DefaultRolePermissions()))
		require.NoError(t, err)
		return ContextWithIdentity(context.Background(), p)
	}

	snap := lifecycle.Snapshot{AgentID: "agent-1"}
	_, err = fsm.Transition(principal("runner"), snap, lifecycle.Graph(), hooks, lifecycle.StateStarting)
	assert.True(t, fsm.IsBlockedByGuard(err))

	ctx := principal("operator")
	for _, target := range []lifecycle.State{lifecycle.StateStarting, lifecycle.StateRunning, lifecycle.StateStopping} {
		snap, err = fsm.Transition(ctx, snap, lifecycle.Graph(), hooks, target)
		require.NoError(t, err, "to %s", target)
	}
	assert.Equal(t, lifecycle.StateStopping, snap.State)
}

// ===========================================================================
// AllOf
// ===========================================================================

func TestAllOf(t *testing.T) {
	t.Parallel()
	allow := func(context.Context, execution, execStatus) (bool, error) { return true, nil }
	deny := func(context.Context, execution, execStatus) (bool, error) { return false, nil }
	boom := errors.New("policy engine unreachable")
	fail := func(context.Context, execution, execStatus) (bool, error) { return true, boom }

	var calls int
	count := func(context.Context, execution, execStatus) (bool, error) { calls++; return true, nil }

	ctx := context.Background()
	e := newExecution(t)

	ok, err := AllOf[execution, execStatus](allow, count)(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)

	ok, err = AllOf[execution, execStatus](deny, count)(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, calls, "guards after a denial do not run")

	ok, err = AllOf[execution, execStatus](allow, fail)(ctx, e, models.ExecutionStatusRunning)
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)

	ok, err = AllOf[execution, execStatus]()(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)
}

// ===========================================================================
// AuditObserver
// ===========================================================================

func TestAuditObserver(t *testing.T) {
	t.Parallel()
	logger, buf := testutil.CaptureLogger(t)
	machine := guardedExecutor(t, AuditObserver[execStatus](logger))
	e := newExecution(t)

	_, err := machine.Transition(context.Background(), e, models.ExecutionStatusRunning)
	require.Error(t, err)

	ctx := ContextWithIdentity(context.Background(), newPrincipal(t, "executions:*"))
	_, err = machine.Transition(ctx, e, models.ExecutionStatusRunning)
	require.NoError(t, err)

	entries := buf.Entries(t)
	require.Len(t, entries, 2)

	denied := entries[0]
	assert.Equal(t, "auth: transition audit", denied["msg"])
	assert.Equal(t, "WARN", denied["level"])
	assert.Equal(t, "anonymous", denied["actor"])
	assert.Equal(t, "pending", denied["from"])
	assert.Equal(t, "running", denied["to"])
	assert.Equal(t, string(fsm.StageGuardChecking), denied["stage"])
	assert.Contains(t, denied["error"], "FSM_002")

	allowed := entries[1]
	assert.Equal(t, "INFO", allowed["level"])
	assert.Equal(t, "user-1", allowed["actor"])
	assert.Equal(t, "user", allowed["actor_type"])
	assert.Equal(t, models.ExecutionMachineName, allowed["machine"])
	assert.Equal(t, string(fsm.StageDone), allowed["stage"])
	assert.NotContains(t, allowed, "error")
}

func TestAuditObserver_NoFromState(t *testing.T) {
	t.Parallel()
	logger, buf := testutil.CaptureLogger(t)
	obs := AuditObserver[execStatus](logger)
	obs(context.Background(), fsm.Record[execStatus]{
		Machine: models.ExecutionMachineName,
		To:      models.ExecutionStatusPending,
		Stage:   fsm.StageDone,
	})

	entries := buf.Entries(t)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0], "from")
	assert.Equal(t, "pending", entries[0]["to"])
}
