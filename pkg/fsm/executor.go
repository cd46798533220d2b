package fsm

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"

// defaultMachineName is used by the package-level [Transition] function.
const defaultMachineName = "fsm"

// Record describes one transition attempt. It is passed to every
// [Observer] once the attempt has finished, successfully or not.
type Record[S comparable] struct {
	// Machine is the executor name.
	Machine string

	// From is the value's current state before the attempt. HadFrom is
	// false when the value had no state.
	From    S
	HadFrom bool

	// To is the requested target state.
	To S

	// Stage is the last stage entered: StageDone on success, otherwise
	// the stage that failed.
	Stage Stage

	// Err is the transition error, or nil on success.
	Err error

	// Duration is the wall-clock time spent in the pipeline.
	Duration time.Duration
}

// OK reports whether the attempt succeeded.
func (r Record[S]) OK() bool {
	return r.Err == nil
}

// Observer is notified after every transition attempt. Observers run
// synchronously on the caller's goroutine, after the pipeline has
// finished, in registration order. A panicking observer is recovered and
// logged; it never changes the outcome returned to the caller.
type Observer[S comparable] func(ctx context.Context, rec Record[S])

// Executor runs transitions for one machine: a [Graph] plus a [Hooks]
// registry, with structured logging, OpenTelemetry tracing and optional
// observers.
//
// An Executor holds no mutable state and is safe for concurrent use with
// different values. Create one with [NewExecutorBuilder].
type Executor[V Transitionable[V, S], S comparable] struct {
	name      string
	graph     *Graph[S]
	hooks     *Hooks[V, S]
	tracer    trace.Tracer
	logger    *slog.Logger
	observers []Observer[S]
}

// Name returns the machine name used in logs, spans and error details.
func (e *Executor[V, S]) Name() string {
	return e.name
}

// Graph returns the transition graph.
func (e *Executor[V, S]) Graph() *Graph[S] {
	return e.graph
}

// Hooks returns the hook registry.
func (e *Executor[V, S]) Hooks() *Hooks[V, S] {
	return e.hooks
}

// Allowed reports whether the graph allows v to move to target. It runs
// the validator only; no hook is invoked.
func (e *Executor[V, S]) Allowed(v V, target S) bool {
	current, ok := v.CurrentState()
	return e.graph.IsAllowed(current, ok, target)
}

// AvailableTargets returns the states v may request according to the
// graph, in declaration order. Guards are not consulted.
func (e *Executor[V, S]) AvailableTargets(v V) []S {
	current, ok := v.CurrentState()
	return e.graph.Targets(e.graph.Effective(current, ok))
}

// Transition moves v to target. It validates the move against the graph,
// then runs the guard, before, persist and after hooks resolved for
// target, in that order, and returns the value produced by the after hook.
//
// On failure Transition returns the zero value of V and a [*sserr.Error]
// with one of the codes [sserr.CodeTransitionNotDeclared],
// [sserr.CodeTransitionBlocked] or [sserr.CodeTransitionHookFailed]. The
// first failure ends the pipeline; nothing is retried. If the guard
// blocks the transition, no before, persist or after hook runs.
//
// The context is passed to every hook unchanged apart from the tracing
// span. Transition does not itself observe cancellation.
func (e *Executor[V, S]) Transition(ctx context.Context, v V, target S) (V, error) {
	started := time.Now()
	from, hadFrom := v.CurrentState()

	ctx, span := e.tracer.Start(ctx, "fsm.Transition",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("fsm.machine", e.name),
			attribute.String("fsm.from", fromLabel(from, hadFrom)),
			attribute.Bool("fsm.from_set", hadFrom),
			attribute.String("fsm.to", label(target)),
		),
	)
	defer span.End()

	out, stage, err := e.run(ctx, span, v, from, hadFrom, target)

	rec := Record[S]{
		Machine:  e.name,
		From:     from,
		HadFrom:  hadFrom,
		To:       target,
		Stage:    stage,
		Err:      err,
		Duration: time.Since(started),
	}

	attrs := []any{
		"machine", e.name,
		"from", fromLabel(from, hadFrom),
		"to", label(target),
		"stage", string(stage),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if KindOf(err) == KindHookFailure {
			e.logger.ErrorContext(ctx, "fsm: transition hook failed", append(attrs, "error", err)...)
		} else {
			e.logger.WarnContext(ctx, "fsm: transition rejected", append(attrs, "error", err)...)
		}
		e.notify(ctx, rec)
		var zero V
		return zero, err
	}

	span.SetStatus(codes.Ok, "")
	e.logger.InfoContext(ctx, "fsm: transition completed",
		append(attrs, "duration", rec.Duration)...)
	e.notify(ctx, rec)
	return out, nil
}

// run executes the pipeline and returns the final value, the last stage
// entered and the transition error, if any.
func (e *Executor[V, S]) run(ctx context.Context, span trace.Span, v V, from S, hadFrom bool, target S) (V, Stage, error) {
	span.AddEvent(StageValidating.String())
	if e.graph == nil {
		return v, StageValidating, sserr.New(sserr.CodeValidationRequired,
			"fsm: executor has no transition graph")
	}
	if !e.graph.IsAllowed(from, hadFrom, target) {
		err := sserr.Newf(sserr.CodeTransitionNotDeclared,
			"fsm: transition from %q to %q is not declared",
			label(e.graph.Effective(from, hadFrom)), label(target))
		return v, StageValidating, e.details(err, from, hadFrom, target, StageValidating, "")
	}

	span.AddEvent(StageGuardChecking.String())
	allowed, err := callGuard(ctx, e.hooks.ResolveGuard(target), v, target)
	if err != nil {
		return v, StageGuardChecking, e.hookFailure(err, from, hadFrom, target, StageGuardChecking, HookGuard)
	}
	if !allowed {
		err := sserr.Newf(sserr.CodeTransitionBlocked,
			"fsm: transition to %q blocked by guard", label(target))
		return v, StageGuardChecking, e.details(err, from, hadFrom, target, StageGuardChecking, HookGuard)
	}

	for _, step := range pipeline {
		span.AddEvent(step.stage.String(),
			trace.WithAttributes(attribute.Bool("fsm.hook.implemented", e.hooks.Implements(step.kind, target))))
		v, err = callHook(ctx, step.kind, e.hooks.Resolve(step.kind, target), v, target)
		if err != nil {
			return v, step.stage, e.hookFailure(err, from, hadFrom, target, step.stage, step.kind)
		}
	}

	span.AddEvent(StageDone.String())
	return v, StageDone, nil
}

func (e *Executor[V, S]) hookFailure(cause error, from S, hadFrom bool, target S, stage Stage, kind HookKind) error {
	err := sserr.Wrapf(cause, sserr.CodeTransitionHookFailed,
		"fsm: %s hook for %q failed", kind, label(target))
	return e.details(err, from, hadFrom, target, stage, kind)
}

func (e *Executor[V, S]) details(err *sserr.Error, from S, hadFrom bool, target S, stage Stage, kind HookKind) error {
	d := map[string]any{
		DetailMachine: e.name,
		DetailFrom:    fromLabel(from, hadFrom),
		DetailTo:      label(target),
		DetailStage:   stage,
	}
	if kind != "" {
		d[DetailHook] = kind
	}
	return err.WithDetails(d)
}

// notify calls every observer. Each observer runs in a deferred-recover
// wrapper so a panicking observer cannot affect the caller.
func (e *Executor[V, S]) notify(ctx context.Context, rec Record[S]) {
	for _, obs := range e.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.ErrorContext(ctx, "fsm: transition observer panicked",
						"panic", r,
						"machine", e.name,
						"to", label(rec.To),
					)
				}
			}()
			obs(ctx, rec)
		}()
	}
}

// callGuard invokes a guard, converting a panic into a [*PanicError].
func callGuard[V any, S comparable](ctx context.Context, fn GuardFunc[V, S], v V, target S) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PanicError{Hook: HookGuard, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, v, target)
}

// callHook invokes a before, persist or after hook, converting a panic
// into a [*PanicError].
func callHook[V any, S comparable](ctx context.Context, kind HookKind, fn HookFunc[V, S], v V, target S) (out V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Hook: kind, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, v, target)
}

func fromLabel[S comparable](from S, ok bool) string {
	if !ok {
		return ""
	}
	return label(from)
}

// Transition runs a single transition with a default executor: machine
// name "fsm", [slog.Default] for logging and the global OpenTelemetry
// tracer provider. A nil hooks registry resolves every hook to its
// default. See [Executor.Transition] for the outcome contract.
func Transition[V Transitionable[V, S], S comparable](ctx context.Context, v V, graph *Graph[S], hooks *Hooks[V, S], target S) (V, error) {
	e := &Executor[V, S]{
		name:   defaultMachineName,
		graph:  graph,
		hooks:  hooks,
		tracer: otel.Tracer(tracerName),
		logger: slog.Default(),
	}
	return e.Transition(ctx, v, target)
}

// ExecutorBuilder constructs an [Executor] with validated configuration.
// Use [NewExecutorBuilder] to start building.
//
// Example:
//
//	exec, err := fsm.NewExecutorBuilder("executions", graph, hooks).
//	    WithLogger(logger).
//	    OnTransition(func(ctx context.Context, rec fsm.Record[models.ExecutionStatus]) {
//	        metrics.Transition(rec.Machine, rec.To, rec.OK())
//	    }).
//	    Build()
type ExecutorBuilder[V Transitionable[V, S], S comparable] struct {
	name      string
	graph     *Graph[S]
	hooks     *Hooks[V, S]
	logger    *slog.Logger
	provider  trace.TracerProvider
	observers []Observer[S]
}

// NewExecutorBuilder creates a builder for the machine with the given
// name, graph and hooks. hooks may be nil, in which case every hook
// resolves to its default.
func NewExecutorBuilder[V Transitionable[V, S], S comparable](name string, graph *Graph[S], hooks *Hooks[V, S]) *ExecutorBuilder[V, S] {
	return &ExecutorBuilder[V, S]{
		name:  name,
		graph: graph,
		hooks: hooks,
	}
}

// WithLogger sets a custom [*slog.Logger]. If not called, [slog.Default]
// is used.
func (b *ExecutorBuilder[V, S]) WithLogger(logger *slog.Logger) *ExecutorBuilder[V, S] {
	b.logger = logger
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. If not
// called, the global provider from [otel.GetTracerProvider] is used.
func (b *ExecutorBuilder[V, S]) WithTracerProvider(tp trace.TracerProvider) *ExecutorBuilder[V, S] {
	b.provider = tp
	return b
}

// OnTransition registers an [Observer]. Multiple observers may be
// registered and are called in registration order.
func (b *ExecutorBuilder[V, S]) OnTransition(obs Observer[S]) *ExecutorBuilder[V, S] {
	b.observers = append(b.observers, obs)
	return b
}

// Build validates the configuration and constructs the [*Executor].
// Returns a [*sserr.Error] with code [sserr.CodeValidationRequired] if
// the name is empty or the graph is nil, or [sserr.CodeValidation] if an
// observer is nil.
func (b *ExecutorBuilder[V, S]) Build() (*Executor[V, S], error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"fsm: executor name must not be empty")
	}
	if b.graph == nil {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"fsm: executor graph must not be nil")
	}
	for i, obs := range b.observers {
		if obs == nil {
			return nil, sserr.Newf(sserr.CodeValidation,
				"fsm: observer %d must not be nil", i)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	var tracer trace.Tracer
	if b.provider != nil {
		tracer = b.provider.Tracer(tracerName)
	} else {
		tracer = otel.Tracer(tracerName)
	}

	return &Executor[V, S]{
		name:      b.name,
		graph:     b.graph,
		hooks:     b.hooks,
		tracer:    tracer,
		logger:    logger,
		observers: slices.Clone(b.observers),
	}, nil
}
