package fsm

// Stage names a step of the transition pipeline. Stages run in the order
// they are declared below; a failure in any stage ends the pipeline.
type Stage string

const (
	// StageValidating checks the target against the graph.
	StageValidating Stage = "validating"

	// StageGuardChecking runs the guard of the target.
	StageGuardChecking Stage = "guard_checking"

	// StageBeforeHook runs the before hook of the target.
	StageBeforeHook Stage = "before_hook"

	// StagePersisting runs the persist hook, which writes the new state.
	StagePersisting Stage = "persisting"

	// StageAfterHook runs the after hook of the target.
	StageAfterHook Stage = "after_hook"

	// StageDone marks a completed transition.
	StageDone Stage = "done"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// pipeline lists the value-transforming stages that follow the guard.
var pipeline = []struct {
	stage Stage
	kind  HookKind
}{
	{StageBeforeHook, HookBefore},
	{StagePersisting, HookPersist},
	{StageAfterHook, HookAfter},
}
