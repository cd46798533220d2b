package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

var tokenNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newValidator(t *testing.T, mutate ...func(*TokenConfig)) *JWTValidator {
	t.Helper()
	cfg := TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     DefaultTokenIssuer,
		ClockSkew:  DefaultClockSkew,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	v, err := NewJWTValidator(cfg, nil)
	require.NoError(t, err)
	v.now = func() time.Time { return tokenNow }
	return v
}

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

// ===========================================================================
// TokenConfig
// ===========================================================================

func TestTokenConfig_Validate(t *testing.T) {
	t.Parallel()
	valid := TokenConfig{SigningKey: testSigningKey, Issuer: DefaultTokenIssuer}
	require.NoError(t, valid.Validate())

	short := valid
	short.SigningKey = "short"
	testutil.AssertErrorCode(t, short.Validate(), sserr.CodeValidation)

	noIssuer := valid
	noIssuer.Issuer = ""
	testutil.AssertErrorCode(t, noIssuer.Validate(), sserr.CodeValidationRequired)

	skew := valid
	skew.ClockSkew = -time.Second
	testutil.AssertErrorCode(t, skew.Validate(), sserr.CodeValidation)

	_, err := NewJWTValidator(short, nil)
	testutil.AssertErrorCode(t, err, sserr.CodeValidation)
}

func TestTokenConfig_Load(t *testing.T) {
	t.Parallel()
	vars := map[string]string{"FSM_AUTH_SIGNING_KEY": testSigningKey}
	var cfg TokenConfig
	err := config.New().
		WithEnvPrefix("fsm_auth").
		WithLookup(func(k string) (string, bool) { v, ok := vars[k]; return v, ok }).
		Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenIssuer, cfg.Issuer)
	assert.Equal(t, DefaultClockSkew, cfg.ClockSkew)
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", cfg, cfg, cfg.SigningKey), testSigningKey)
	testutil.AssertJSONNotContains(t, cfg, testSigningKey)
}

// ===========================================================================
// Validate
// ===========================================================================

// TestJWTValidator_IssueAndValidate verifies that an issued token maps to
// a principal whose permissions merge roles and direct grants.
func TestJWTValidator_IssueAndValidate(t *testing.T) {
	t.Parallel()
	v := newValidator(t, func(c *TokenConfig) { c.Audience = "fsm-api" })

	token, err := v.Issue("svc-scheduler", IdentityTypeService, []string{"runner"}, []string{"executions:canceled"}, time.Hour)
	require.NoError(t, err)

	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "svc-scheduler", identity.ID())
	assert.Equal(t, IdentityTypeService, identity.Type())
	assert.True(t, identity.HasPermission("executions", "running"))
	assert.True(t, identity.HasPermission("executions", "canceled"))
	assert.False(t, identity.HasPermission("agent-lifecycle", "starting"))
	assert.Equal(t, DefaultTokenIssuer, identity.Claims()["iss"])
}

func TestJWTValidator_DefaultIdentityType(t *testing.T) {
	t.Parallel()
	v := newValidator(t)
	token := sign(t, testSigningKey, jwt.MapClaims{
		"sub": "user-9",
		"iss": DefaultTokenIssuer,
		"exp": tokenNow.Add(time.Minute).Unix(),
	})
	identity, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, IdentityTypeUser, identity.Type())
	assert.False(t, identity.HasPermission("executions", "running"))
}

func TestJWTValidator_Rejects(t *testing.T) {
	t.Parallel()
	v := newValidator(t, func(c *TokenConfig) { c.Audience = "fsm-api" })
	exp := tokenNow.Add(time.Hour).Unix()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{"sub": "user-1", "iss": DefaultTokenIssuer, "aud": "fsm-api", "exp": exp}
	}
	with := func(k string, val any) jwt.MapClaims {
		c := base()
		if val == nil {
			delete(c, k)
		} else {
			c[k] = val
		}
		return c
	}

	tests := []struct {
		name  string
		token string
		code  sserr.Code
	}{
		{"malformed", "not.a.token", sserr.CodeAuthenticationInvalid},
		{"wrong key", sign(t, strings.Repeat("x", 32), base()), sserr.CodeAuthenticationInvalid},
		{"wrong issuer", sign(t, testSigningKey, with("iss", "someone-else")), sserr.CodeAuthenticationInvalid},
		{"wrong audience", sign(t, testSigningKey, with("aud", "other-api")), sserr.CodeAuthenticationInvalid},
		{"expired", sign(t, testSigningKey, with("exp", tokenNow.Add(-time.Hour).Unix())), sserr.CodeAuthenticationExpired},
		{"no expiry", sign(t, testSigningKey, with("exp", nil)), sserr.CodeAuthenticationInvalid},
		{"no subject", sign(t, testSigningKey, with("sub", nil)), sserr.CodeAuthenticationInvalid},
		{"unknown identity type", sign(t, testSigningKey, with(ClaimIdentityType, "robot")), sserr.CodeAuthenticationInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			identity, err := v.Validate(context.Background(), tt.token)
			assert.Nil(t, identity)
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

// TestJWTValidator_ClockSkew verifies that a token expired by less than
// the configured skew is still accepted.
func TestJWTValidator_ClockSkew(t *testing.T) {
	t.Parallel()
	v := newValidator(t)
	token := sign(t, testSigningKey, jwt.MapClaims{
		"sub": "user-1",
		"iss": DefaultTokenIssuer,
		"exp": tokenNow.Add(-10 * time.Second).Unix(),
	})
	_, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
}

func TestSecret(t *testing.T) {
	t.Parallel()
	s := Secret("key")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "key", s.Value())
	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))
}
