package config

import (
	"testing"
	"time"

	"github.com/rileyhilliard/pb/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"empty exe", func(c *Config) { c.Exe = " " }, "No benchmark executable"},
		{"zero repetitions", func(c *Config) { c.Repetitions = 0 }, "repetitions must be at least 1"},
		{"empty out", func(c *Config) { c.Out = "" }, "No output directory"},
		{"negative parallel", func(c *Config) { c.MaxParallel = -1 }, "max_parallel can't be negative"},
		{"zero timeout", func(c *Config) { c.ConnectTimeout = 0 }, "connect_timeout must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "Unknown log_level 'loud'"},
		{"blank host", func(c *Config) { c.Hosts = []string{"alpha", ""} }, "Empty host name"},
		{"host with space", func(c *Config) { c.Hosts = []string{"al pha"} }, "whitespace or quotes"},
		{"no args", func(c *Config) { c.Bench.Args = nil }, "bench.args is empty"},
		{"empty result file", func(c *Config) { c.Bench.ResultFile = "" }, "must be a plain file name"},
		{"result file path", func(c *Config) { c.Bench.ResultFile = "../out.csv" }, "must be a plain file name"},
		{"result file dotdot", func(c *Config) { c.Bench.ResultFile = ".." }, "must be a plain file name"},
		{"relative lock dir", func(c *Config) { c.Lock.Dir = "tmp" }, "lock.dir 'tmp' must be an absolute path"},
		{"negative lock timeout", func(c *Config) { c.Lock.Timeout = -time.Second }, "can't be negative"},
		{"unknown var", func(c *Config) { c.Bench.Args = []string{"./bench", "${HOST}"} }, "unknown variable(s): ${HOST}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_AcceptsVariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "DEBUG"
	cfg.MaxParallel = 0
	cfg.ConnectTimeout = time.Millisecond
	cfg.Hosts = []string{"user@alpha:2222", "beta"}
	require.NoError(t, Validate(cfg))

	cfg.Lock = LockConfig{Enabled: false, Dir: ""}
	require.NoError(t, Validate(cfg), "a disabled lock isn't checked")
}

func TestValidateHosts(t *testing.T) {
	err := ValidateHosts(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "No hosts to benchmark")

	require.NoError(t, ValidateHosts([]string{"alpha"}))
	require.Error(t, ValidateHosts([]string{"alpha", "b\"eta"}))
}
