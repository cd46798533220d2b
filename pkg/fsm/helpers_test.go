package fsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil/fixtures"
)

// order is the value type used throughout the package tests. It is a
// value type so that tests can observe that the engine never mutates the
// caller's copy.
type order struct {
	state  string
	set    bool
	marker bool
	trail  []string
}

func (o order) CurrentState() (string, bool) { return o.state, o.set }

func (o order) WithState(s string) order {
	o.state = s
	o.set = true
	return o
}

// mark returns a copy of o with step appended to its trail.
func (o order) mark(step string) order {
	o.trail = append(append([]string(nil), o.trail...), step)
	return o
}

func inState(s string) order { return order{state: s, set: true} }

// orderGraph returns the three-state order graph:
// created -> {partial, completed}, partial -> {completed}.
func orderGraph(t testing.TB) *Graph[string] {
	t.Helper()
	g, err := NewGraphBuilder[string]().
		State(fixtures.StateCreated, fixtures.StatePartial, fixtures.StateCompleted).
		Transition(fixtures.StateCreated, fixtures.StatePartial, fixtures.StateCompleted).
		Transition(fixtures.StatePartial, fixtures.StateCompleted).
		Build()
	require.NoError(t, err)
	return g
}

// markingHook returns a hook that appends step to the value's trail.
func markingHook(step string) HookFunc[order, string] {
	return func(_ context.Context, o order, _ string) (order, error) {
		return o.mark(step), nil
	}
}
