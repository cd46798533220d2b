package redis

import (
	"context"

	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// PersistHook returns an fsm persist hook that writes the target state of
// the value identified by key through store, then sets it on the value.
// The value's current state is the expected stored state.
func PersistHook[V fsm.Transitionable[V, S], S ~string](store *Store, key func(V) string) fsm.HookFunc[V, S] {
	return func(ctx context.Context, v V, target S) (V, error) {
		from, ok := v.CurrentState()
		if err := store.SetState(ctx, key(v), string(from), ok, string(target)); err != nil {
			var zero V
			return zero, err
		}
		return v.WithState(target), nil
	}
}
