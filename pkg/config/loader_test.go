package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// stateName mimics an fsm state type: a named string.
type stateName string

type basicConfig struct {
	Host     string        `env:"HOST" envDefault:"localhost" yaml:"host" json:"host"`
	Port     int           `env:"PORT" envDefault:"8080" yaml:"port" json:"port"`
	Database string        `env:"DATABASE" yaml:"database" json:"database"`
	Debug    bool          `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s" yaml:"timeout" json:"timeout"`
}

type machineConfig struct {
	Name     string      `env:"NAME" required:"true" yaml:"name"`
	Initial  stateName   `env:"INITIAL" envDefault:"pending" yaml:"initial"`
	Terminal []stateName `env:"TERMINAL" envDefault:"completed,failed" yaml:"terminal"`
	MaxConns int32       `env:"MAX_CONNS" envDefault:"25" yaml:"max_conns"`
	Workers  uint16      `env:"WORKERS" envDefault:"4" yaml:"workers"`
	Ratio    float64     `env:"RATIO" envDefault:"0.5" yaml:"ratio"`
	Store    storeConfig `env:"STORE" yaml:"store"`
	Started  time.Time   `yaml:"started"`
}

type storeConfig struct {
	URI   string `env:"URI" required:"true" yaml:"uri"`
	Table string `env:"TABLE" envDefault:"executions" yaml:"table"`
}

type validatedConfig struct {
	Port int `env:"PORT"`
}

func (c *validatedConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidation,
			"config: port %d is out of range [1, 65535]", c.Port)
	}
	return nil
}

type stdlibValidatedConfig struct {
	Name string `env:"NAME"`
}

func (c *stdlibValidatedConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// env returns a LookupFunc backed by vars.
func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// ===========================================================================
// Defaults
// ===========================================================================

// TestLoad_Defaults verifies envDefault handling for every supported kind.
func TestLoad_Defaults(t *testing.T) {
	t.Parallel()
	var cfg machineConfig
	err := New().WithLookup(env(map[string]string{
		"NAME":      "executions",
		"STORE_URI": fixtures.TestDBURI,
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "executions", cfg.Name)
	assert.Equal(t, stateName("pending"), cfg.Initial)
	assert.Equal(t, []stateName{"completed", "failed"}, cfg.Terminal)
	assert.Equal(t, int32(25), cfg.MaxConns)
	assert.Equal(t, uint16(4), cfg.Workers)
	assert.InDelta(t, 0.5, cfg.Ratio, 1e-9)
	assert.Equal(t, "executions", cfg.Store.Table)
	assert.Equal(t, fixtures.TestDBURI, cfg.Store.URI)
	assert.True(t, cfg.Started.IsZero())
}

// TestLoad_DefaultsKeepExistingValues verifies that defaults only fill
// zero-valued fields.
func TestLoad_DefaultsKeepExistingValues(t *testing.T) {
	t.Parallel()
	cfg := basicConfig{Host: "db.internal", Port: 6543}
	require.NoError(t, New().WithLookup(env(nil)).Load(&cfg))
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

// ===========================================================================
// Environment
// ===========================================================================

// TestLoad_EnvOverrides verifies that env vars win over defaults, that the
// prefix is uppercased, and that nested structs extend the prefix.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Parallel()
	var cfg machineConfig
	err := New().WithEnvPrefix("fsm").WithLookup(env(map[string]string{
		"FSM_NAME":        "orders",
		"FSM_INITIAL":     "created",
		"FSM_TERMINAL":    " completed , , canceled ",
		"FSM_MAX_CONNS":   "5",
		"FSM_WORKERS":     "16",
		"FSM_RATIO":       "0.25",
		"FSM_STORE_URI":   fixtures.TestDBURI,
		"FSM_STORE_TABLE": "orders",
		"NAME":            "ignored without prefix",
	})).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, stateName("created"), cfg.Initial)
	assert.Equal(t, []stateName{"completed", "canceled"}, cfg.Terminal)
	assert.Equal(t, int32(5), cfg.MaxConns)
	assert.Equal(t, uint16(16), cfg.Workers)
	assert.InDelta(t, 0.25, cfg.Ratio, 1e-9)
	assert.Equal(t, "orders", cfg.Store.Table)
}

// TestLoad_EnvParseErrors verifies that unparsable values are reported as
// configuration errors naming the variable.
func TestLoad_EnvParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"int", "PORT", "eighty"},
		{"bool", "DEBUG", "maybe"},
		{"duration", "TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg basicConfig
			err := New().WithLookup(env(map[string]string{tt.key: tt.val})).Load(&cfg)
			testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

// TestLoad_ProcessEnv verifies that the default lookup reads the process
// environment.
func TestLoad_ProcessEnv(t *testing.T) {
	testutil.SetEnv(t, fixtures.TestEnvPrefix+"_HOST", "from-env")
	var cfg basicConfig
	require.NoError(t, New().WithEnvPrefix(fixtures.TestEnvPrefix).Load(&cfg))
	assert.Equal(t, "from-env", cfg.Host)
}

// ===========================================================================
// Files
// ===========================================================================

// TestLoad_Files verifies YAML and JSON files and their priority between
// defaults and the environment.
func TestLoad_Files(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		ext     string
	}{
		{"yaml", fixtures.TestConfigYAML, ".yaml"},
		{"yml", fixtures.TestConfigYAML, ".yml"},
		{"json", fixtures.TestConfigJSON, ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := testutil.TempConfigFile(t, tt.content, tt.ext)
			var cfg basicConfig
			err := New().WithFile(path).WithLookup(env(map[string]string{
				"PORT": "9090",
			})).Load(&cfg)
			require.NoError(t, err)
			assert.Equal(t, "localhost", cfg.Host)
			assert.Equal(t, "testdb", cfg.Database)
			assert.Equal(t, 9090, cfg.Port, "env must override the file")
			assert.Equal(t, 30*time.Second, cfg.Timeout, "default must survive")
		})
	}
}

// TestLoad_FileErrors verifies the file-related failures.
func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		loader func(t *testing.T) *Loader
	}{
		{"traversal", func(*testing.T) *Loader { return New().WithFile("../secrets.yaml") }},
		{"bad extension", func(t *testing.T) *Loader {
			return New().WithFile(testutil.TempConfigFile(t, "host = 1", ".toml"))
		}},
		{"bad yaml", func(t *testing.T) *Loader {
			return New().WithFile(testutil.TempConfigFile(t, "host: [", ".yaml"))
		}},
		{"bad json", func(t *testing.T) *Loader {
			return New().WithFile(testutil.TempConfigFile(t, "{", ".json"))
		}},
		{"missing required file", func(t *testing.T) *Loader {
			return New().WithRequiredFile(t.TempDir() + "/absent.yaml")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg basicConfig
			err := tt.loader(t).WithLookup(env(nil)).Load(&cfg)
			testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration)
		})
	}
}

// TestLoad_MissingOptionalFile verifies that a missing optional file is
// not an error.
func TestLoad_MissingOptionalFile(t *testing.T) {
	t.Parallel()
	var cfg basicConfig
	err := New().WithFile(t.TempDir() + "/absent.yaml").WithLookup(env(nil)).Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
}

// ===========================================================================
// Validation
// ===========================================================================

// TestLoad_Required verifies that required fields are checked with their
// dotted path, including nested fields.
func TestLoad_Required(t *testing.T) {
	t.Parallel()
	var cfg machineConfig
	err := New().WithLookup(env(map[string]string{"NAME": "x"})).Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Store.URI")

	var empty machineConfig
	err = New().WithLookup(env(nil)).Load(&empty)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), `"Name"`)

	// Values from an earlier Load stay in the struct and satisfy the check.
	err = New().WithLookup(env(nil)).Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Store.URI")
}

// TestLoad_Validator verifies custom validation, both with platform
// errors and with plain errors.
func TestLoad_Validator(t *testing.T) {
	t.Parallel()

	var bad validatedConfig
	err := New().WithLookup(env(map[string]string{"PORT": "70000"})).Load(&bad)
	testutil.AssertErrorCode(t, err, sserr.CodeValidation)

	var good validatedConfig
	require.NoError(t, New().WithLookup(env(map[string]string{"PORT": "443"})).Load(&good))

	var plain stdlibValidatedConfig
	err = New().WithLookup(env(nil)).Load(&plain)
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
	assert.Contains(t, err.Error(), "name is required")
}

// TestLoad_InvalidTarget verifies that Load rejects anything other than
// a non-nil struct pointer.
func TestLoad_InvalidTarget(t *testing.T) {
	t.Parallel()
	var nilCfg *basicConfig
	var n int
	for name, target := range map[string]any{
		"nil":            nil,
		"nil pointer":    nilCfg,
		"non-pointer":    basicConfig{},
		"pointer to int": &n,
	} {
		err := New().Load(target)
		testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration, name)
	}
}

// TestMustLoad verifies the panic-on-failure convenience wrapper.
func TestMustLoad(t *testing.T) {
	t.Parallel()
	cfg := MustLoad[basicConfig](New().WithLookup(env(map[string]string{"HOST": "h"})))
	assert.Equal(t, "h", cfg.Host)

	assert.Panics(t, func() {
		_ = MustLoad[machineConfig](New().WithLookup(env(nil)))
	})
}
