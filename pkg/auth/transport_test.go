package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"BEARER  abc ":  "abc",
		"Basic abc":     "",
		"abc":           "",
		"":              "",
		"Bearer":        "",
		"  Bearer xyz ": "xyz",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractBearerToken(in), "%q", in)
	}
}

// ===========================================================================
// gRPC
// ===========================================================================

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()
	v := newValidator(t)
	token, err := v.Issue("svc-1", IdentityTypeService, []string{"operator"}, nil, time.Hour)
	require.NoError(t, err)

	interceptor := UnaryServerInterceptor(v)
	info := &grpc.UnaryServerInfo{FullMethod: "/fsm.v1.Executions/Transition"}
	handler := func(ctx context.Context, req any) (any, error) {
		identity, ok := IdentityFromContext(ctx)
		require.True(t, ok)
		return identity.ID(), nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Bearer "+token))
	resp, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", resp)
}

func TestUnaryServerInterceptor_Unauthenticated(t *testing.T) {
	t.Parallel()
	interceptor := UnaryServerInterceptor(newValidator(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/fsm.v1.Executions/Transition"}
	handler := func(context.Context, any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}

	contexts := map[string]context.Context{
		"no metadata":   context.Background(),
		"no header":     metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1")),
		"basic auth":    metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Basic dXNlcg==")),
		"invalid token": metadata.NewIncomingContext(context.Background(), metadata.Pairs(HeaderAuthorization, "Bearer nope")),
	}
	for name, ctx := range contexts {
		_, err := interceptor(ctx, nil, info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), name)
	}
}

// ===========================================================================
// HTTP
// ===========================================================================

func TestHTTPMiddleware(t *testing.T) {
	t.Parallel()
	v := newValidator(t)
	token, err := v.Issue("user-5", IdentityTypeUser, nil, []string{"executions:running"}, time.Hour)
	require.NoError(t, err)

	var seen Identity
	h := HTTPMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/executions/1/transitions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.True(t, seen.HasPermission("executions", "running"))

	for _, header := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodPost, "/executions/1/transitions", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
	}
}

type validatorFunc func(ctx context.Context, token string) (Identity, error)

func (f validatorFunc) Validate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// TestHTTPMiddleware_ValidatorUnavailable verifies that a validator
// failing for reasons other than the token maps to a server error.
func TestHTTPMiddleware_ValidatorUnavailable(t *testing.T) {
	t.Parallel()
	v := validatorFunc(func(context.Context, string) (Identity, error) {
		return nil, errors.New("key store unreachable")
	})
	h := HTTPMiddleware(v)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/executions/1", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
