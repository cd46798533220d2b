package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

type ticketState string

type ticket struct {
	id    string
	state ticketState
	set   bool
}

func (t ticket) CurrentState() (ticketState, bool) { return t.state, t.set }

func (t ticket) WithState(s ticketState) ticket {
	t.state, t.set = s, true
	return t
}

func ticketKey(t ticket) string { return t.id }

func ticketExecutor(t *testing.T, s *Store) *fsm.Executor[ticket, ticketState] {
	t.Helper()
	graph, err := fsm.NewGraphBuilder[ticketState]().
		State(fixtures.StateCreated, fixtures.StatePartial, fixtures.StateCompleted).
		Transition(fixtures.StateCreated, fixtures.StatePartial, fixtures.StateCompleted).
		Transition(fixtures.StatePartial, fixtures.StateCompleted).
		Build()
	require.NoError(t, err)

	persist := PersistHook[ticket, ticketState](s, ticketKey)
	hooks, err := fsm.NewHooksBuilder[ticket, ticketState]().
		Persist(fixtures.StatePartial, persist).
		Persist(fixtures.StateCompleted, persist).
		Build()
	require.NoError(t, err)

	exec, err := fsm.NewExecutorBuilder(fixtures.MachineName, graph, hooks).
		WithLogger(testutil.DiscardLogger()).
		Build()
	require.NoError(t, err)
	return exec
}

// TestPersistHook verifies that transitions through the executor are
// written to Redis with the value's current state as expectation.
func TestPersistHook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newTestStore(t, nil)
	exec := ticketExecutor(t, s)

	// An absent state validates as "created" and persists as the first
	// write.
	v, err := exec.Transition(ctx, ticket{id: fixtures.RecordID}, fixtures.StatePartial)
	require.NoError(t, err)
	assert.Equal(t, ticketState(fixtures.StatePartial), v.state)
	assert.Equal(t, fixtures.StatePartial, mr.HGet(s.Key(fixtures.RecordID), DefaultStateField))

	v, err = exec.Transition(ctx, v, fixtures.StateCompleted)
	require.NoError(t, err)
	assert.Equal(t, ticketState(fixtures.StateCompleted), v.state)

	hist, err := s.History(ctx, fixtures.RecordID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, fixtures.StatePartial, hist[1].From)
}

// TestPersistHook_StaleValue verifies that a value read before a
// concurrent transition fails as a persist hook failure caused by a
// version mismatch.
func TestPersistHook_StaleValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestStore(t, nil)
	exec := ticketExecutor(t, s)

	stale := ticket{id: fixtures.RecordID, state: fixtures.StateCreated, set: true}
	require.NoError(t, s.SetState(ctx, fixtures.RecordID, "", false, fixtures.StateCreated))

	_, err := exec.Transition(ctx, stale, fixtures.StatePartial)
	require.NoError(t, err)

	out, err := exec.Transition(ctx, stale, fixtures.StateCompleted)
	require.Error(t, err)
	assert.Equal(t, ticket{}, out)
	assert.True(t, fsm.IsHookFailure(err))
	kind, ok := fsm.FailedHook(err)
	require.True(t, ok)
	assert.Equal(t, fsm.HookPersist, kind)

	ssErr, ok := sserr.AsError(err)
	require.True(t, ok)
	cause, ok := sserr.AsError(ssErr.Cause)
	require.True(t, ok)
	assert.Equal(t, sserr.CodeConflictVersionMismatch, cause.Code)
}
