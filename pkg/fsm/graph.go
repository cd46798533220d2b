package fsm

import (
	"fmt"
	"slices"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// Graph is the immutable declaration of a state machine: its ordered
// states, its initial state and the allowed moves between states.
//
// A Graph is created with [GraphBuilder.Build] and is safe for concurrent
// use by multiple goroutines. The zero value is not usable.
type Graph[S comparable] struct {
	states  []S
	index   map[S]int
	targets map[S][]S
	allowed map[S]map[S]struct{}
}

// States returns the declared states in declaration order. The returned
// slice is a copy.
func (g *Graph[S]) States() []S {
	return slices.Clone(g.states)
}

// Initial returns the initial state, which is always the first declared
// state.
func (g *Graph[S]) Initial() S {
	return g.states[0]
}

// Has reports whether s is a declared state.
func (g *Graph[S]) Has(s S) bool {
	_, ok := g.index[s]
	return ok
}

// Targets returns the states reachable from from in a single transition,
// in the order the transitions were declared. A target declared twice
// keeps its first position. Undeclared or terminal states have no targets.
func (g *Graph[S]) Targets(from S) []S {
	return slices.Clone(g.targets[from])
}

// Terminal reports whether s is a declared state without outgoing
// transitions.
func (g *Graph[S]) Terminal(s S) bool {
	return g.Has(s) && len(g.targets[s]) == 0
}

// Reachable returns every state reachable from from through one or more
// transitions, in state declaration order. from itself is included only when a
// cycle leads back to it.
func (g *Graph[S]) Reachable(from S) []S {
	seen := make(map[S]bool, len(g.states))
	queue := slices.Clone(g.targets[from])
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s] {
			continue
		}
		seen[s] = true
		queue = append(queue, g.targets[s]...)
	}
	out := make([]S, 0, len(seen))
	for _, s := range g.states {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}

// Allows reports whether the graph declares a transition from from to to.
// A from state that is not a key in the graph allows nothing.
func (g *Graph[S]) Allows(from, to S) bool {
	_, ok := g.allowed[from][to]
	return ok
}

// Effective returns the state used for validation: current when ok is
// true, otherwise the initial state. It never writes anything back.
func (g *Graph[S]) Effective(current S, ok bool) S {
	if !ok {
		return g.Initial()
	}
	return current
}

// IsAllowed reports whether a value whose current state is (current, ok)
// may move to target. An absent current state (ok == false) is validated
// as if it were the initial state. A current state the graph does not
// know, such as a stale value read from storage, allows no targets.
func (g *Graph[S]) IsAllowed(current S, ok bool, target S) bool {
	return g.Allows(g.Effective(current, ok), target)
}

// GraphBuilder declares the states and transitions of a [Graph]. Use
// [NewGraphBuilder] to start building. Configuration methods return the
// builder for chaining; validation happens in [GraphBuilder.Build].
//
// Example:
//
//	graph, err := fsm.NewGraphBuilder[string]().
//	    State("created", "partial", "completed").
//	    Transition("created", "partial", "completed").
//	    Transition("partial", "completed").
//	    Build()
type GraphBuilder[S comparable] struct {
	states []S
	edges  []edge[S]
}

type edge[S comparable] struct {
	from S
	to   []S
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder[S comparable]() *GraphBuilder[S] {
	return &GraphBuilder[S]{}
}

// State appends states in declaration order. The first state ever
// declared becomes the initial state.
func (b *GraphBuilder[S]) State(states ...S) *GraphBuilder[S] {
	b.states = append(b.states, states...)
	return b
}

// Transition allows moves from from to each of to. The order of the
// calls and of to fixes the order of [Graph.Targets]. Declaring the same
// move twice is harmless.
func (b *GraphBuilder[S]) Transition(from S, to ...S) *GraphBuilder[S] {
	b.edges = append(b.edges, edge[S]{from: from, to: slices.Clone(to)})
	return b
}

// Build validates the declaration and returns the immutable [Graph].
//
// Returns a [*sserr.Error] with:
//   - [sserr.CodeValidationRequired] if no state was declared
//   - [sserr.CodeValidationFormat] if a state is the zero value of S
//   - [sserr.CodeValidationDuplicate] if a state is declared twice
//   - [sserr.CodeValidation] if a transition references an undeclared state
func (b *GraphBuilder[S]) Build() (*Graph[S], error) {
	if len(b.states) == 0 {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"fsm: graph must declare at least one state")
	}

	var zero S
	index := make(map[S]int, len(b.states))
	for i, s := range b.states {
		if s == zero {
			return nil, sserr.Newf(sserr.CodeValidationFormat,
				"fsm: state at position %d is the zero value", i)
		}
		if _, dup := index[s]; dup {
			return nil, sserr.Newf(sserr.CodeValidationDuplicate,
				"fsm: state %q declared more than once", label(s))
		}
		index[s] = i
	}

	allowed := make(map[S]map[S]struct{})
	targets := make(map[S][]S)
	for _, e := range b.edges {
		if _, ok := index[e.from]; !ok {
			return nil, sserr.Newf(sserr.CodeValidation,
				"fsm: transition from undeclared state %q", label(e.from))
		}
		set, ok := allowed[e.from]
		if !ok {
			set = make(map[S]struct{}, len(e.to))
			allowed[e.from] = set
		}
		for _, to := range e.to {
			if _, ok := index[to]; !ok {
				return nil, sserr.Newf(sserr.CodeValidation,
					"fsm: transition from %q to undeclared state %q", label(e.from), label(to))
			}
			if _, seen := set[to]; seen {
				continue
			}
			set[to] = struct{}{}
			targets[e.from] = append(targets[e.from], to)
		}
	}

	return &Graph[S]{
		states:  slices.Clone(b.states),
		index:   index,
		targets: targets,
		allowed: allowed,
	}, nil
}

// label renders a state for messages, log attributes and span attributes.
func label[S comparable](s S) string {
	return fmt.Sprint(s)
}
