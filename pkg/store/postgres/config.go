package postgres

import (
	"net/url"
	"regexp"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// maxSQLTruncateLen is the maximum length of SQL statements recorded in
// span attributes.
const maxSQLTruncateLen = 100

// Default settings for the state store.
const (
	// DefaultTable is the table holding the records whose state is managed.
	DefaultTable = "executions"

	// DefaultIDColumn is the primary key column of [DefaultTable].
	DefaultIDColumn = "id"

	// DefaultStateColumn is the column holding the current state.
	DefaultStateColumn = "status"

	// DefaultHistoryTable is the append-only transition history table.
	DefaultHistoryTable = "state_transitions"

	// DefaultMaxConns is the maximum number of connections in the pool.
	DefaultMaxConns int32 = 10

	// DefaultHealthTimeout is the maximum time for a health check ping
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// identifierPattern matches a plain or schema-qualified SQL identifier.
// Table and column names are interpolated into statements, so nothing
// else is accepted.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Secret is a string that is redacted when formatted or marshaled, so
// that connection strings carrying passwords never reach logs.
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

// Value returns the underlying string. Only call it where the secret is
// handed to the driver.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler and always emits
// "[REDACTED]".
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config configures a [Store]. It is loadable with the config package:
//
//	cfg := config.MustLoad[postgres.Config](config.New().WithEnvPrefix("FSM_POSTGRES"))
type Config struct {
	// URI is a PostgreSQL connection string (postgres://...).
	URI Secret `env:"URI" yaml:"uri" json:"uri" required:"true"`

	// Table holds the records whose state is managed.
	// Default: "executions"
	Table string `env:"TABLE" envDefault:"executions" yaml:"table" json:"table"`

	// IDColumn is the primary key column of Table.
	// Default: "id"
	IDColumn string `env:"ID_COLUMN" envDefault:"id" yaml:"id_column" json:"id_column"`

	// StateColumn holds the current state. NULL means "no state yet".
	// Default: "status"
	StateColumn string `env:"STATE_COLUMN" envDefault:"status" yaml:"state_column" json:"state_column"`

	// HistoryTable receives one row per successful state write. An empty
	// value disables history.
	// Default: "state_transitions"
	HistoryTable string `env:"HISTORY_TABLE" envDefault:"state_transitions" yaml:"history_table" json:"history_table"`

	// MaxConns is the maximum number of pooled connections.
	// Default: 10
	MaxConns int32 `env:"MAX_CONNS" envDefault:"10" yaml:"max_conns" json:"max_conns"`
}

// DefaultConfig returns a Config with every default applied. URI must
// still be set.
func DefaultConfig() *Config {
	return &Config{
		Table:        DefaultTable,
		IDColumn:     DefaultIDColumn,
		StateColumn:  DefaultStateColumn,
		HistoryTable: DefaultHistoryTable,
		MaxConns:     DefaultMaxConns,
	}
}

// Validate checks the configuration. It implements config.Validator.
func (c *Config) Validate() error {
	if c.URI == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"postgres: URI is required")
	}
	u, err := url.Parse(c.URI.Value())
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return sserr.New(sserr.CodeValidationFormat,
			"postgres: URI must be a postgres:// or postgresql:// URL")
	}
	idents := []struct {
		name     string
		value    string
		optional bool
	}{
		{"table", c.Table, false},
		{"id column", c.IDColumn, false},
		{"state column", c.StateColumn, false},
		{"history table", c.HistoryTable, true},
	}
	for _, id := range idents {
		if id.value == "" && id.optional {
			continue
		}
		if !identifierPattern.MatchString(id.value) {
			return sserr.Newf(sserr.CodeValidationFormat,
				"postgres: %s %q is not a valid SQL identifier", id.name, id.value)
		}
	}
	if c.MaxConns < 1 {
		return sserr.Newf(sserr.CodeValidation,
			"postgres: max conns %d must be at least 1", c.MaxConns)
	}
	return nil
}

// truncateSQL shortens a statement for span attributes.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
