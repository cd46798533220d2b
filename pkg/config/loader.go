// Package config loads the configuration of FSM services and tools from
// struct tag defaults, YAML or JSON files and environment variables.
// Values are resolved in priority order:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file  (medium priority)
//	Environment variables  (highest priority)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps the field to an environment variable. On a
//     nested struct the tag becomes a prefix for the struct's fields.
//   - `envDefault:"value"` sets a default when the field is zero-valued.
//   - `required:"true"` fails validation if the field remains zero after loading.
//
// Fields must also carry `yaml` or `json` tags for file-based loading.
//
// # Usage
//
//	type ServiceConfig struct {
//	    Machine  string          `env:"MACHINE" envDefault:"executions" yaml:"machine"`
//	    Graph    string          `env:"GRAPH_FILE" yaml:"graph_file"`
//	    Postgres postgres.Config `env:"POSTGRES" yaml:"postgres"`
//	}
//
//	cfg := config.MustLoad[ServiceConfig](
//	    config.New().WithEnvPrefix("FSM").WithFile("fsm.yaml"),
//	)
//
// With the prefix above, Postgres.URI is read from FSM_POSTGRES_URI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Loader builds and executes configuration loading. Use [New] to create
// a Loader.
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix    string
	filePath     string
	fileRequired bool
	lookup       LookupFunc
}

// New creates a [Loader] that reads environment variables through
// [os.LookupEnv], with no prefix and no file.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix sets a prefix joined with "_" to every environment
// variable name. The prefix is uppercased; an empty prefix disables
// prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets an optional YAML (.yaml, .yml) or JSON (.json) file. A
// missing file is ignored. Paths containing ".." are rejected by
// [Loader.Load].
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	l.fileRequired = false
	return l
}

// WithRequiredFile is like [Loader.WithFile] but a missing file makes
// [Loader.Load] fail.
func (l *Loader) WithRequiredFile(path string) *Loader {
	l.filePath = path
	l.fileRequired = true
	return l
}

// WithLookup replaces the environment lookup. Tests use it to supply
// variables without touching the process environment.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn == nil {
		fn = os.LookupEnv
	}
	l.lookup = fn
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct.
//
// After loading, fields tagged `required:"true"` must hold non-zero
// values, and if cfg implements [Validator] its Validate method is
// called.
//
// Returns a [*sserr.Error] with code [sserr.CodeInternalConfiguration]
// for loading failures, or [sserr.CodeValidationRequired] /
// [sserr.CodeValidation] for validation failures.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	lookup := l.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(rv, l.envPrefix, lookup); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad creates a zero T, loads it with loader and returns it. It
// panics if loading or validation fails, so it belongs in func main.
//
// Example:
//
//	cfg := config.MustLoad[redis.Config](config.New().WithEnvPrefix("FSM_REDIS"))
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(filepath.Clean(l.filePath))
	if err != nil {
		if os.IsNotExist(err) && !l.fileRequired {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}
