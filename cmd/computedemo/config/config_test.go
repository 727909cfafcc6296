package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "", cfg.Backend.Name)
	assert.Equal(t, 1024, cfg.Run.Elements)
	assert.Equal(t, []string{"double", "chain", "normalize"}, cfg.Run.Scenarios)
	assert.Zero(t, cfg.MemoryBudget())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	yaml := `
backend:
  name: software
  memory_budget_mb: 16
  poll_interval: 2ms
run:
  scenarios: [chain]
  elements: 300
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "software", cfg.Backend.Name)
	assert.Equal(t, uint64(16<<20), cfg.MemoryBudget())
	assert.Equal(t, 2*time.Millisecond, cfg.Backend.PollInterval)
	assert.Equal(t, []string{"chain"}, cfg.Run.Scenarios)
	assert.Equal(t, 300, cfg.Run.Elements)
	assert.Equal(t, 30*time.Second, cfg.Run.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COMPUTE_BACKEND_NAME", "software")
	t.Setenv("COMPUTE_RUN_ELEMENTS", "77")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "software", cfg.Backend.Name)
	assert.Equal(t, 77, cfg.Run.Elements)
}

func TestLoadWith_OverrideWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COMPUTE_LOGGING_LEVEL", "warn")

	v := viper.New()
	v.Set("logging.level", "error")
	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backend: [unclosed"), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("backend:\n  name: metal\n"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{"missing explicit file", filepath.Join(dir, "nope.yaml")},
		{"malformed yaml", bad},
		{"invalid backend", invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend.Name = "metal" }},
		{"negative budget", func(c *Config) { c.Backend.MemoryBudgetMB = -1 }},
		{"negative poll interval", func(c *Config) { c.Backend.PollInterval = -time.Second }},
		{"zero elements", func(c *Config) { c.Run.Elements = 0 }},
		{"zero timeout", func(c *Config) { c.Run.Timeout = 0 }},
		{"no scenarios", func(c *Config) { c.Run.Scenarios = nil }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
