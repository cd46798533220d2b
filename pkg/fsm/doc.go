// Package fsm attaches finite-state-machine behavior to arbitrary domain
// values. A value participates by implementing [Transitionable]: it exposes
// its current state (which may be absent) and knows how to return a copy of
// itself carrying a new state.
//
// # Building Blocks
//
// A [Graph] declares the ordered set of states, the initial state (always
// the first declared state) and the allowed state-to-state moves. It is
// built once with [NewGraphBuilder], validated eagerly, and never mutated.
//
// A [Hooks] registry holds optional per-target-state overrides for four
// hook kinds: guard, before, persist and after. Resolution is a static
// table lookup done at call time; a (kind, target) pair without an override
// resolves to the kind's default:
//
//	guard   → always true
//	before  → identity
//	persist → v.WithState(target)
//	after   → identity
//
// An [Executor] runs the pipeline in a fixed order:
//
//	Validating → GuardChecking → BeforeHook → Persisting → AfterHook → Done
//
// The first failure ends the pipeline. No step is retried.
//
// # Outcomes
//
// Transition returns the updated value or an error carrying exactly one of
// three codes from the platform error package:
//
//   - [sserr.CodeTransitionNotDeclared]: the graph does not allow the move
//   - [sserr.CodeTransitionBlocked]: a guard returned false
//   - [sserr.CodeTransitionHookFailed]: an implemented hook returned an error
//     or panicked; the hook's error is preserved as the cause
//
// Use [KindOf], [IsNotDeclared], [IsBlockedByGuard] and [IsHookFailure] to
// classify outcomes. Classification is structural and never inspects
// message text.
//
// # Thread Safety
//
// Graph, Hooks and Executor are read-only after construction and safe for
// concurrent use with different values. The engine does not serialize
// concurrent transitions of the same entity; callers that need one
// in-flight transition per entity must provide that themselves, for
// example with a compare-and-set persist hook from pkg/store.
//
// # Example
//
//	graph, err := fsm.NewGraphBuilder[string]().
//	    State("created", "partial", "completed").
//	    Transition("created", "partial", "completed").
//	    Transition("partial", "completed").
//	    Build()
//
//	hooks, err := fsm.NewHooksBuilder[Order, string]().
//	    Before("partial", markPartial).
//	    After("completed", clearMarker).
//	    Build()
//
//	order, err = fsm.Transition(ctx, order, graph, hooks, "partial")
package fsm
