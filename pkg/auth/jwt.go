package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// Default token settings.
const (
	DefaultTokenIssuer = "stricklysoft-fsm"
	DefaultClockSkew   = 30 * time.Second
)

// Token claim names read by [JWTValidator] in addition to the registered
// claims. Permission claims are described in [ClaimsToPermissions].
const (
	ClaimIdentityType = "identity_type"
	ClaimRoles        = "roles"
	ClaimPermissions  = "permissions"
)

// Secret is a string that is redacted when formatted or marshaled.
type Secret string

const secretRedacted = "[REDACTED]"

// String implements fmt.Stringer and always returns "[REDACTED]".
func (s Secret) String() string { return secretRedacted }

// GoString implements fmt.GoStringer so %#v is redacted too.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the underlying string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler and always emits
// "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// TokenValidator validates a bearer token and returns the identity it
// carries. Implementations must be safe for concurrent use.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// TokenConfig configures a [JWTValidator]. Tokens are HS256-signed with a
// shared key.
type TokenConfig struct {
	// SigningKey is the HMAC key. Required.
	SigningKey Secret `env:"SIGNING_KEY" yaml:"signing_key" json:"signing_key"`

	// Issuer is required in the iss claim.
	// Default: "stricklysoft-fsm"
	Issuer string `env:"ISSUER" envDefault:"stricklysoft-fsm" yaml:"issuer" json:"issuer"`

	// Audience is required in the aud claim when set.
	Audience string `env:"AUDIENCE" yaml:"audience" json:"audience"`

	// ClockSkew is the leeway applied to exp, nbf and iat.
	// Default: 30s
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"30s" yaml:"clock_skew" json:"clock_skew"`
}

// Validate checks the configuration. It implements config.Validator.
func (c *TokenConfig) Validate() error {
	if len(c.SigningKey) < 32 {
		return sserr.New(sserr.CodeValidation, "auth: signing key must be at least 32 bytes")
	}
	if c.Issuer == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: issuer is required")
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidation, "auth: clock skew must not be negative")
	}
	return nil
}

// JWTValidator validates HS256 platform tokens and maps their claims to a
// [Principal].
type JWTValidator struct {
	config  TokenConfig
	roleMap RolePermissionMap
	now     func() time.Time
}

var _ TokenValidator = (*JWTValidator)(nil)

// NewJWTValidator creates a validator. A nil roleMap selects
// [DefaultRolePermissions].
func NewJWTValidator(cfg TokenConfig, roleMap RolePermissionMap) (*JWTValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if roleMap == nil {
		roleMap = DefaultRolePermissions()
	}
	return &JWTValidator{config: cfg, roleMap: roleMap, now: time.Now}, nil
}

// Validate verifies the signature, issuer, audience and expiry of token
// and returns the identity it carries. The sub claim becomes the identity
// ID; the identity_type claim defaults to user.
//
// Error codes returned:
//   - [sserr.CodeAuthenticationExpired]: expired token
//   - [sserr.CodeAuthenticationInvalid]: any other validation failure
func (v *JWTValidator) Validate(_ context.Context, token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithLeeway(v.config.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(v.config.SigningKey.Value()), nil
	}, opts...)
	if err != nil {
		return nil, classifyError(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token has no subject")
	}
	idType := IdentityTypeUser
	if raw, ok := claims[ClaimIdentityType].(string); ok && raw != "" {
		idType = IdentityType(raw)
	}

	plain := map[string]any(claims)
	principal, err := NewPrincipal(sub, idType, plain, ClaimsToPermissions(plain, v.roleMap))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token identity is invalid")
	}
	return principal, nil
}

// Issue signs a token for subject that [JWTValidator.Validate] accepts
// until ttl has passed. It is used by trusted platform components and
// tests.
func (v *JWTValidator) Issue(subject string, idType IdentityType, roles, permissions []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub":             subject,
		"iss":             v.config.Issuer,
		"iat":             jwt.NewNumericDate(now),
		"exp":             jwt.NewNumericDate(now.Add(ttl)),
		ClaimIdentityType: string(idType),
	}
	if v.config.Audience != "" {
		claims["aud"] = v.config.Audience
	}
	if len(roles) > 0 {
		claims[ClaimRoles] = roles
	}
	if len(permissions) > 0 {
		claims[ClaimPermissions] = permissions
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.config.SigningKey.Value()))
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "auth: failed to sign token")
	}
	return signed, nil
}

// classifyError converts a JWT library error to a [*sserr.Error].
func classifyError(err error) *sserr.Error {
	var ssErr *sserr.Error
	if errors.As(err, &ssErr) {
		return ssErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token audience is invalid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token validation failed")
	}
}
