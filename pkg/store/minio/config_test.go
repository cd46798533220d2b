package minio

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-fsm/internal/testutil"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AccessKey = "fsm"
	cfg.SecretKey = "s3cret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.Equal(t, DefaultPrefix, cfg.Prefix)
	assert.False(t, cfg.UseSSL)
	testutil.AssertErrorCode(t, cfg.Validate(), sserr.CodeValidationRequired)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		code   sserr.Code
	}{
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, sserr.CodeValidationRequired},
		{"endpoint with scheme", func(c *Config) { c.Endpoint = "http://minio:9000" }, sserr.CodeValidationFormat},
		{"missing access key", func(c *Config) { c.AccessKey = "" }, sserr.CodeValidationRequired},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, sserr.CodeValidationRequired},
		{"absolute prefix", func(c *Config) { c.Prefix = "/graphs/" }, sserr.CodeValidationFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			testutil.AssertErrorCode(t, cfg.Validate(), tt.code)
		})
	}
}

// TestConfig_Validate_DefaultRegion verifies that an empty region is
// filled in and an empty prefix is accepted.
func TestConfig_Validate_DefaultRegion(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Region = ""
	cfg.Prefix = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRegion, cfg.Region)
}

// TestConfig_Load verifies loading through the config package.
func TestConfig_Load(t *testing.T) {
	t.Parallel()
	vars := map[string]string{
		"FSM_MINIO_ENDPOINT":   "objects:9000",
		"FSM_MINIO_ACCESS_KEY": "fsm",
		"FSM_MINIO_SECRET_KEY": "s3cret",
		"FSM_MINIO_USE_SSL":    "true",
	}
	var cfg Config
	err := config.New().
		WithEnvPrefix("fsm_minio").
		WithLookup(func(k string) (string, bool) { v, ok := vars[k]; return v, ok }).
		Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "objects:9000", cfg.Endpoint)
	assert.Equal(t, "s3cret", cfg.SecretKey.Value())
	assert.True(t, cfg.UseSSL)
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.Equal(t, DefaultPrefix, cfg.Prefix)

	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", cfg.SecretKey, cfg, cfg), "s3cret")
	testutil.AssertJSONNotContains(t, cfg, "s3cret")
}

func TestSecret(t *testing.T) {
	t.Parallel()
	s := Secret("minioadmin")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "minioadmin", s.Value())
	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GetObject graphs/orders.yaml", truncateStatement("GetObject graphs/orders.yaml"))

	long := strings.Repeat("日", maxStatementTruncateLen+1)
	got := truncateStatement(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, maxStatementTruncateLen, len([]rune(strings.TrimSuffix(got, "..."))))
}
