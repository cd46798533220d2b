// Package lifecycle declares the agent lifecycle as an [fsm.Graph].
//
// # Agent Lifecycle
//
// Every agent follows a defined lifecycle. The [State] type represents
// the agent's current position in it, and [Graph] declares the allowed
// moves between states. A [Snapshot] carries an agent's state through an
// [fsm.Executor], so lifecycle changes get the same validation, hooks,
// logging and tracing as any other machine.
//
// The lifecycle flow for a healthy agent is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Agents may also be paused and resumed:
//
//	Running → Paused → Running
//
// Any non-terminal state may transition to Failed on error, and both
// terminal states (Stopped, Failed) may transition back to Starting
// for restart.
package lifecycle

import (
	"sync"
	"time"

	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// MachineName is the machine name reported for agent lifecycle
// transitions.
const MachineName = "agent-lifecycle"

// State represents the lifecycle state of an agent.
//
// The zero value ("") is not a valid state. A [Snapshot] without a state
// is validated as [StateUnknown], the initial state of [Graph].
type State string

const (
	// StateUnknown is the initial state of a newly constructed agent before
	// it has been started.
	StateUnknown State = "unknown"

	// StateStarting indicates the agent is in the process of starting.
	StateStarting State = "starting"

	// StateRunning indicates the agent has started successfully and is
	// processing work.
	StateRunning State = "running"

	// StatePaused indicates the agent has been temporarily suspended. A
	// paused agent retains its resources but does not process new work.
	StatePaused State = "paused"

	// StateStopping indicates the agent is draining in-flight work before
	// shutting down.
	StateStopping State = "stopping"

	// StateStopped indicates the agent has completed a clean shutdown. A
	// stopped agent may be restarted through [StateStarting].
	StateStopped State = "stopped"

	// StateFailed indicates the agent encountered an unrecoverable error.
	// A failed agent may be restarted through [StateStarting].
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether the state is declared by [Graph].
func (s State) Valid() bool {
	return Graph().Has(s)
}

// IsTerminal reports whether the state is a terminal lifecycle state.
// Terminal states are [StateStopped] and [StateFailed]. Unlike an
// [fsm.Graph] terminal state they still allow a restart.
func (s State) IsTerminal() bool {
	switch s {
	case StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// Transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Failed, Stopping
//	Running  → Paused, Stopping, Failed
//	Paused   → Running, Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting              (restart)
//	Failed   → Starting              (recovery restart)
var graph = sync.OnceValue(func() *fsm.Graph[State] {
	g, err := fsm.NewGraphBuilder[State]().
		State(StateUnknown, StateStarting, StateRunning, StatePaused,
			StateStopping, StateStopped, StateFailed).
		Transition(StateUnknown, StateStarting, StateFailed).
		Transition(StateStarting, StateRunning, StateFailed, StateStopping).
		Transition(StateRunning, StatePaused, StateStopping, StateFailed).
		Transition(StatePaused, StateRunning, StateStopping, StateFailed).
		Transition(StateStopping, StateStopped, StateFailed).
		Transition(StateStopped, StateStarting).
		Transition(StateFailed, StateStarting).
		Build()
	if err != nil {
		panic(err)
	}
	return g
})

// Graph returns the agent lifecycle graph. The graph is built once and
// shared.
func Graph() *fsm.Graph[State] {
	return graph()
}

// ValidTransition reports whether transitioning from state from to state to
// is declared by [Graph]. Same-state transitions are never declared.
func ValidTransition(from, to State) bool {
	return Graph().Allows(from, to)
}

// Snapshot is the lifecycle position of one agent. It is a value type:
// [Snapshot.WithState] returns a new snapshot.
type Snapshot struct {
	AgentID string    `json:"agent_id"`
	State   State     `json:"state,omitempty"`
	Since   time.Time `json:"since"`
}

var _ fsm.Transitionable[Snapshot, State] = Snapshot{}

// CurrentState returns the snapshot's state, or false when it has none.
func (s Snapshot) CurrentState() (State, bool) {
	return s.State, s.State != ""
}

// WithState returns a copy of s in state st, with Since set to now.
func (s Snapshot) WithState(st State) Snapshot {
	s.State = st
	s.Since = time.Now().UTC()
	return s
}

// Key returns the agent ID, for use with the store persist hooks.
func (s Snapshot) Key() string {
	return s.AgentID
}
