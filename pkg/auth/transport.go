package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// HeaderAuthorization carries the bearer token in HTTP headers and gRPC
// metadata.
const HeaderAuthorization = "authorization"

// ExtractBearerToken returns the token of a "Bearer <token>" header value,
// or "" when the value has another form. The scheme is case-insensitive.
func ExtractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// validates the bearer token of each request and stores the resulting
// [Identity] in the handler context, where [RequirePermission] guards
// find it. Missing or invalid tokens fail with codes.Unauthenticated.
func UnaryServerInterceptor(validator TokenValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get(HeaderAuthorization)
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		token := ExtractBearerToken(values[0])
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
		}

		identity, err := validator.Validate(ctx, token)
		if err != nil {
			slog.WarnContext(ctx, "auth: rejected gRPC request",
				"method", info.FullMethod,
				"error", err,
			)
			return nil, status.Error(codes.Unauthenticated, "token validation failed")
		}
		return handler(ContextWithIdentity(ctx, identity), req)
	}
}

// HTTPMiddleware returns middleware that validates the bearer token of
// each request and stores the resulting [Identity] in the request
// context. Missing tokens are answered with 401; validation failures with
// the status of the returned error (401 for the AUTH codes of
// [JWTValidator]).
func HTTPMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}
			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				slog.WarnContext(r.Context(), "auth: rejected HTTP request",
					"path", r.URL.Path,
					"error", err,
				)
				http.Error(w, "token validation failed", sserr.FromError(err).HTTPStatus())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}
