package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

// identityKey stores the acting Identity in the context.
const identityKey contextKey = iota

// ContextWithIdentity returns a new context carrying identity. The
// identity can later be retrieved with [IdentityFromContext].
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the Identity from the context. It never
// returns a non-nil identity with false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// TraceIDFromContext returns the hex trace ID of the active span, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
