package minio

import (
	"regexp"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// maxStatementTruncateLen is the maximum length of operation descriptions
// recorded in span attributes.
const maxStatementTruncateLen = 100

// Default settings for the graph document registry.
const (
	// DefaultEndpoint is the MinIO host:port used when none is configured.
	DefaultEndpoint = "localhost:9000"

	// DefaultRegion is the bucket region.
	DefaultRegion = "us-east-1"

	// DefaultBucket holds the graph documents.
	DefaultBucket = "fsm-graphs"

	// DefaultPrefix is prepended to every object name.
	DefaultPrefix = "graphs/"

	// DefaultHealthTimeout is the maximum time for a health check when
	// the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// documentSuffix is appended to the machine name to form the object name.
const documentSuffix = ".yaml"

// machinePattern restricts machine names so each maps to exactly one
// object directly below the prefix.
var machinePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

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

// Config configures a [Registry].
type Config struct {
	// Endpoint is the MinIO host:port, without scheme.
	// Default: "localhost:9000"
	Endpoint string `env:"ENDPOINT" envDefault:"localhost:9000" yaml:"endpoint" json:"endpoint"`

	AccessKey string `env:"ACCESS_KEY" yaml:"access_key" json:"access_key"`

	SecretKey Secret `env:"SECRET_KEY" yaml:"secret_key" json:"secret_key"`

	// Region is the bucket region.
	// Default: "us-east-1"
	Region string `env:"REGION" envDefault:"us-east-1" yaml:"region" json:"region"`

	UseSSL bool `env:"USE_SSL" yaml:"use_ssl" json:"use_ssl"`

	// Bucket holds the graph documents.
	// Default: "fsm-graphs"
	Bucket string `env:"BUCKET" envDefault:"fsm-graphs" yaml:"bucket" json:"bucket"`

	// Prefix is prepended to every object name. It may be empty.
	// Default: "graphs/"
	Prefix string `env:"PREFIX" envDefault:"graphs/" yaml:"prefix" json:"prefix"`
}

// DefaultConfig returns a Config with every default applied. The access
// and secret keys must still be set.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Region:   DefaultRegion,
		Bucket:   DefaultBucket,
		Prefix:   DefaultPrefix,
	}
}

// Validate checks the configuration. It implements config.Validator.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return sserr.Newf(sserr.CodeValidationFormat,
			"minio: endpoint must be host:port without a scheme, got %q", c.Endpoint)
	}
	if c.AccessKey == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: access key is required")
	}
	if c.Bucket == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: bucket is required")
	}
	if strings.HasPrefix(c.Prefix, "/") {
		return sserr.Newf(sserr.CodeValidationFormat,
			"minio: prefix %q must not start with '/'", c.Prefix)
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return nil
}

// truncateStatement truncates an operation description to
// [maxStatementTruncateLen] runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
