package neo4j

import (
	"net/url"
	"regexp"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// maxStatementTruncateLen is the maximum length of Cypher statements
// recorded in span attributes.
const maxStatementTruncateLen = 100

// Default settings for the Neo4j graph catalog.
const (
	// DefaultURI is the Bolt URI used when none is configured.
	DefaultURI = "neo4j://localhost:7687"

	// DefaultDatabase is the Neo4j database holding the catalog.
	DefaultDatabase = "neo4j"

	// DefaultUsername is the Neo4j user.
	DefaultUsername = "neo4j"

	// DefaultStateLabel is the node label of published states.
	DefaultStateLabel = "State"

	// DefaultTransitionType is the relationship type of published
	// transitions.
	DefaultTransitionType = "TRANSITION"

	// DefaultMaxConnectionPoolSize is the maximum number of pooled
	// connections.
	DefaultMaxConnectionPoolSize = 20

	// DefaultConnectTimeout bounds establishing a new connection.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHealthTimeout is the maximum time for a health check when
	// the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// identifierPattern restricts labels and relationship types, which are
// interpolated into Cypher.
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

var validSchemes = map[string]bool{
	"neo4j":   true,
	"neo4j+s": true,
	"bolt":    true,
	"bolt+s":  true,
}

// Secret is a string that is redacted when formatted or marshaled.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer and always returns "[REDACTED]".
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the underlying string.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler and always emits
// "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config configures a [Store].
type Config struct {
	// URI is the Bolt URI. Supports neo4j://, neo4j+s://, bolt:// and
	// bolt+s://.
	// Default: "neo4j://localhost:7687"
	URI string `env:"URI" envDefault:"neo4j://localhost:7687" yaml:"uri" json:"uri"`

	// Database is the Neo4j database holding the catalog.
	// Default: "neo4j"
	Database string `env:"DATABASE" envDefault:"neo4j" yaml:"database" json:"database"`

	// Username authenticates with the server.
	// Default: "neo4j"
	Username string `env:"USERNAME" envDefault:"neo4j" yaml:"username" json:"username"`

	// Password authenticates with the server.
	Password Secret `env:"PASSWORD" yaml:"password" json:"password"`

	// StateLabel is the node label of published states.
	// Default: "State"
	StateLabel string `env:"STATE_LABEL" envDefault:"State" yaml:"state_label" json:"state_label"`

	// TransitionType is the relationship type of published transitions.
	// Default: "TRANSITION"
	TransitionType string `env:"TRANSITION_TYPE" envDefault:"TRANSITION" yaml:"transition_type" json:"transition_type"`

	// MaxConnectionPoolSize is the maximum number of pooled connections.
	// Default: 20
	MaxConnectionPoolSize int `env:"MAX_CONNECTION_POOL_SIZE" envDefault:"20" yaml:"max_connection_pool_size" json:"max_connection_pool_size"`

	// ConnectTimeout bounds establishing a new connection.
	// Default: 10s
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s" yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		URI:                   DefaultURI,
		Database:              DefaultDatabase,
		Username:              DefaultUsername,
		StateLabel:            DefaultStateLabel,
		TransitionType:        DefaultTransitionType,
		MaxConnectionPoolSize: DefaultMaxConnectionPoolSize,
		ConnectTimeout:        DefaultConnectTimeout,
	}
}

// Validate checks the configuration. It implements config.Validator.
func (c *Config) Validate() error {
	if c.URI == "" {
		return sserr.New(sserr.CodeValidationRequired, "neo4j: uri is required")
	}
	u, err := url.Parse(c.URI)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeValidationFormat, "neo4j: uri is invalid")
	}
	if !validSchemes[u.Scheme] {
		return sserr.Newf(sserr.CodeValidationFormat,
			"neo4j: uri scheme must be neo4j, neo4j+s, bolt or bolt+s, got %q", u.Scheme)
	}
	if c.Database == "" {
		return sserr.New(sserr.CodeValidationRequired, "neo4j: database is required")
	}
	if c.Username == "" {
		return sserr.New(sserr.CodeValidationRequired, "neo4j: username is required")
	}
	if !identifierPattern.MatchString(c.StateLabel) {
		return sserr.Newf(sserr.CodeValidationFormat,
			"neo4j: state label %q is not a valid identifier", c.StateLabel)
	}
	if !identifierPattern.MatchString(c.TransitionType) {
		return sserr.Newf(sserr.CodeValidationFormat,
			"neo4j: transition type %q is not a valid identifier", c.TransitionType)
	}
	if c.MaxConnectionPoolSize < 1 {
		return sserr.Newf(sserr.CodeValidation,
			"neo4j: max connection pool size %d must be at least 1", c.MaxConnectionPoolSize)
	}
	if c.ConnectTimeout < 0 {
		return sserr.Newf(sserr.CodeValidation,
			"neo4j: connect timeout %v must not be negative", c.ConnectTimeout)
	}
	return nil
}

// truncateStatement truncates a Cypher statement to
// [maxStatementTruncateLen] runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
