package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// RequirePermission returns a guard that allows a transition only when
// the identity in the context holds the permission resource:target. A
// context without an identity is denied. Denials are reported by the
// executor as guard rejections; see [fsm.IsBlockedByGuard].
func RequirePermission[V any, S ~string](resource string) fsm.GuardFunc[V, S] {
	return func(ctx context.Context, _ V, target S) (bool, error) {
		identity, ok := IdentityFromContext(ctx)
		if !ok {
			return false, nil
		}
		return identity.HasPermission(resource, string(target)), nil
	}
}

// AllOf returns a guard that allows a transition only when every guard
// allows it. Guards run in order; the first denial or error wins.
func AllOf[V any, S comparable](guards ...fsm.GuardFunc[V, S]) fsm.GuardFunc[V, S] {
	return func(ctx context.Context, v V, target S) (bool, error) {
		for _, g := range guards {
			ok, err := g(ctx, v, target)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// AuditObserver returns an observer that logs every transition attempt
// together with the acting identity. Successful attempts are logged at
// Info, failed ones at Warn. A nil logger selects [slog.Default].
func AuditObserver[S comparable](logger *slog.Logger) fsm.Observer[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, rec fsm.Record[S]) {
		attrs := []any{
			"machine", rec.Machine,
			"to", fmt.Sprint(rec.To),
			"stage", rec.Stage.String(),
			"duration", rec.Duration,
		}
		if rec.HadFrom {
			attrs = append(attrs, "from", fmt.Sprint(rec.From))
		}
		if identity, ok := IdentityFromContext(ctx); ok {
			attrs = append(attrs, "actor", identity.ID(), "actor_type", identity.Type().String())
		} else {
			attrs = append(attrs, "actor", "anonymous")
		}
		if traceID, ok := TraceIDFromContext(ctx); ok {
			attrs = append(attrs, "trace_id", traceID)
		}

		if rec.OK() {
			logger.InfoContext(ctx, "auth: transition audit", attrs...)
			return
		}
		logger.WarnContext(ctx, "auth: transition audit", append(attrs, "error", rec.Err)...)
	}
}
