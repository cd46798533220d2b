package fsm

import (
	"context"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// Transitionable is implemented by domain values that carry a current
// state. V is the value type itself, so that WithState can return an
// updated copy for value types or the same pointer for pointer types.
//
// The engine only ever calls CurrentState. WithState is called by the
// default persist hook and is free to do nothing more than assign a field.
type Transitionable[V any, S comparable] interface {
	// CurrentState returns the current state and true, or the zero value
	// and false if the value has no state yet.
	CurrentState() (S, bool)

	// WithState returns the value with its current state set to s.
	WithState(s S) V
}

// HookKind identifies one of the four hook slots of a [Hooks] registry.
type HookKind string

const (
	// HookGuard decides whether a transition may proceed.
	HookGuard HookKind = "guard"

	// HookBefore runs after the guard and before persistence.
	HookBefore HookKind = "before"

	// HookPersist writes the new state.
	HookPersist HookKind = "persist"

	// HookAfter runs once the new state has been persisted.
	HookAfter HookKind = "after"
)

// String returns the string representation of the hook kind.
func (k HookKind) String() string {
	return string(k)
}

// Valid reports whether the hook kind is one of the four known kinds.
func (k HookKind) Valid() bool {
	switch k {
	case HookGuard, HookBefore, HookPersist, HookAfter:
		return true
	default:
		return false
	}
}

// GuardFunc decides whether v may move to target. Returning false blocks
// the transition; returning an error fails it as a hook failure.
type GuardFunc[V any, S comparable] func(ctx context.Context, v V, target S) (bool, error)

// HookFunc transforms v as part of a transition to target. The returned
// value is passed to the next step of the pipeline.
type HookFunc[V any, S comparable] func(ctx context.Context, v V, target S) (V, error)

// Hooks is the per-domain-type hook registry. It maps each (kind, target)
// pair to an optional override. Pairs without an override resolve to the
// kind's default, so a type may implement a before hook for one target and
// leave every other target on the identity default.
//
// Hooks is immutable after [HooksBuilder.Build] and safe for concurrent
// use. A nil *Hooks resolves every pair to its default.
type Hooks[V Transitionable[V, S], S comparable] struct {
	guards map[S]GuardFunc[V, S]
	steps  map[HookKind]map[S]HookFunc[V, S]
}

// Implements reports whether an override is registered for the given hook
// kind and target state. This is a table lookup; no hook is invoked.
func (h *Hooks[V, S]) Implements(kind HookKind, target S) bool {
	if h == nil {
		return false
	}
	if kind == HookGuard {
		_, ok := h.guards[target]
		return ok
	}
	_, ok := h.steps[kind][target]
	return ok
}

// ResolveGuard returns the guard registered for target, or the default
// guard that always allows the transition.
func (h *Hooks[V, S]) ResolveGuard(target S) GuardFunc[V, S] {
	if h != nil {
		if fn, ok := h.guards[target]; ok {
			return fn
		}
	}
	return allowAll[V, S]
}

// Resolve returns the before, persist or after hook registered for
// target, or the kind's default: identity for before and after, and
// v.WithState(target) for persist. Passing [HookGuard] or an unknown kind
// resolves to identity; use [Hooks.ResolveGuard] for guards.
func (h *Hooks[V, S]) Resolve(kind HookKind, target S) HookFunc[V, S] {
	if h != nil {
		if fn, ok := h.steps[kind][target]; ok {
			return fn
		}
	}
	if kind == HookPersist {
		return writeState[V, S]
	}
	return identity[V, S]
}

func allowAll[V any, S comparable](context.Context, V, S) (bool, error) {
	return true, nil
}

func identity[V any, S comparable](_ context.Context, v V, _ S) (V, error) {
	return v, nil
}

func writeState[V Transitionable[V, S], S comparable](_ context.Context, v V, target S) (V, error) {
	return v.WithState(target), nil
}

// HooksBuilder registers per-target hook overrides. Use [NewHooksBuilder]
// to start building. Each (kind, target) pair may be registered once.
//
// Example:
//
//	hooks, err := fsm.NewHooksBuilder[*models.Execution, models.ExecutionStatus]().
//	    Guard(models.ExecutionStatusCompleted, requireNoError).
//	    Before(models.ExecutionStatusRunning, stampStart).
//	    Persist(models.ExecutionStatusRunning, store.Persist).
//	    Build()
type HooksBuilder[V Transitionable[V, S], S comparable] struct {
	guards map[S]GuardFunc[V, S]
	steps  map[HookKind]map[S]HookFunc[V, S]
	err    error
}

// NewHooksBuilder creates an empty builder.
func NewHooksBuilder[V Transitionable[V, S], S comparable]() *HooksBuilder[V, S] {
	return &HooksBuilder[V, S]{
		guards: make(map[S]GuardFunc[V, S]),
		steps: map[HookKind]map[S]HookFunc[V, S]{
			HookBefore:  {},
			HookPersist: {},
			HookAfter:   {},
		},
	}
}

// Guard registers a guard for transitions into target.
func (b *HooksBuilder[V, S]) Guard(target S, fn GuardFunc[V, S]) *HooksBuilder[V, S] {
	if b.err != nil {
		return b
	}
	if fn == nil {
		b.err = nilHookError(HookGuard, target)
		return b
	}
	if _, dup := b.guards[target]; dup {
		b.err = duplicateHookError(HookGuard, target)
		return b
	}
	b.guards[target] = fn
	return b
}

// Before registers a before hook for transitions into target.
func (b *HooksBuilder[V, S]) Before(target S, fn HookFunc[V, S]) *HooksBuilder[V, S] {
	return b.step(HookBefore, target, fn)
}

// Persist registers a persist hook for transitions into target. The hook
// replaces the default state write entirely, so it is responsible for
// setting the state on the value it returns.
func (b *HooksBuilder[V, S]) Persist(target S, fn HookFunc[V, S]) *HooksBuilder[V, S] {
	return b.step(HookPersist, target, fn)
}

// After registers an after hook for transitions into target.
func (b *HooksBuilder[V, S]) After(target S, fn HookFunc[V, S]) *HooksBuilder[V, S] {
	return b.step(HookAfter, target, fn)
}

func (b *HooksBuilder[V, S]) step(kind HookKind, target S, fn HookFunc[V, S]) *HooksBuilder[V, S] {
	if b.err != nil {
		return b
	}
	if fn == nil {
		b.err = nilHookError(kind, target)
		return b
	}
	if _, dup := b.steps[kind][target]; dup {
		b.err = duplicateHookError(kind, target)
		return b
	}
	b.steps[kind][target] = fn
	return b
}

// Build returns the immutable registry, or the first registration error
// as a [*sserr.Error] with code [sserr.CodeValidation] (nil hook) or
// [sserr.CodeValidationDuplicate] (pair registered twice).
func (b *HooksBuilder[V, S]) Build() (*Hooks[V, S], error) {
	if b.err != nil {
		return nil, b.err
	}

	guards := make(map[S]GuardFunc[V, S], len(b.guards))
	for target, fn := range b.guards {
		guards[target] = fn
	}
	steps := make(map[HookKind]map[S]HookFunc[V, S], len(b.steps))
	for kind, table := range b.steps {
		copied := make(map[S]HookFunc[V, S], len(table))
		for target, fn := range table {
			copied[target] = fn
		}
		steps[kind] = copied
	}

	return &Hooks[V, S]{guards: guards, steps: steps}, nil
}

func nilHookError[S comparable](kind HookKind, target S) error {
	return sserr.Newf(sserr.CodeValidation,
		"fsm: %s hook for %q must not be nil", kind, label(target))
}

func duplicateHookError[S comparable](kind HookKind, target S) error {
	return sserr.Newf(sserr.CodeValidationDuplicate,
		"fsm: %s hook for %q registered more than once", kind, label(target))
}
