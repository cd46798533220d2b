package redis

import (
	"net"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// maxStatementTruncateLen is the maximum length of statements recorded in
// span attributes.
const maxStatementTruncateLen = 100

// Default settings for the Redis state store.
const (
	// DefaultAddr is the Redis address used when none is configured.
	DefaultAddr = "localhost:6379"

	// DefaultKeyPrefix namespaces every key written by the store.
	DefaultKeyPrefix = "fsm"

	// DefaultStateField is the hash field holding the current state.
	DefaultStateField = "state"

	// DefaultPoolSize is the maximum number of socket connections.
	DefaultPoolSize = 10

	// DefaultHealthTimeout is the maximum time for a health check ping
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

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
//
// Each record is a hash at "<KeyPrefix>:<id>" whose StateField holds the
// current state. Its history is a list of JSON entries at
// "<KeyPrefix>:<id>:history".
type Config struct {
	// Addr is the host:port of the Redis server.
	// Default: "localhost:6379"
	Addr string `env:"ADDR" envDefault:"localhost:6379" yaml:"addr" json:"addr"`

	// Password authenticates with the server. Optional.
	Password Secret `env:"PASSWORD" yaml:"password" json:"password"`

	// DB is the logical database index.
	DB int `env:"DB" yaml:"db" json:"db"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `env:"POOL_SIZE" envDefault:"10" yaml:"pool_size" json:"pool_size"`

	// KeyPrefix namespaces the store's keys.
	// Default: "fsm"
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"fsm" yaml:"key_prefix" json:"key_prefix"`

	// StateField is the hash field holding the current state.
	// Default: "state"
	StateField string `env:"STATE_FIELD" envDefault:"state" yaml:"state_field" json:"state_field"`

	// DisableHistory turns off the history list.
	DisableHistory bool `env:"DISABLE_HISTORY" yaml:"disable_history" json:"disable_history"`

	// HistoryLimit keeps only the most recent entries of each history
	// list. Zero keeps everything.
	HistoryLimit int64 `env:"HISTORY_LIMIT" yaml:"history_limit" json:"history_limit"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Addr:       DefaultAddr,
		PoolSize:   DefaultPoolSize,
		KeyPrefix:  DefaultKeyPrefix,
		StateField: DefaultStateField,
	}
}

// Validate checks the configuration. It implements config.Validator.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return sserr.New(sserr.CodeValidationRequired, "redis: addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return sserr.Wrapf(err, sserr.CodeValidationFormat,
			"redis: addr %q must be host:port", c.Addr)
	}
	if c.DB < 0 || c.DB > 15 {
		return sserr.Newf(sserr.CodeValidation,
			"redis: db %d is out of range [0, 15]", c.DB)
	}
	if c.PoolSize < 1 {
		return sserr.Newf(sserr.CodeValidation,
			"redis: pool size %d must be at least 1", c.PoolSize)
	}
	if c.KeyPrefix == "" || strings.ContainsAny(c.KeyPrefix, " \t\r\n") {
		return sserr.Newf(sserr.CodeValidationFormat,
			"redis: key prefix %q must be non-empty without whitespace", c.KeyPrefix)
	}
	if c.StateField == "" {
		return sserr.New(sserr.CodeValidationRequired, "redis: state field is required")
	}
	if c.HistoryLimit < 0 {
		return sserr.Newf(sserr.CodeValidation,
			"redis: history limit %d must not be negative", c.HistoryLimit)
	}
	return nil
}

func truncateStatement(s string) string {
	if len(s) <= maxStatementTruncateLen {
		return s
	}
	return s[:maxStatementTruncateLen] + "..."
}
