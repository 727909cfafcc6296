package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the computedemo configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Run     RunConfig     `mapstructure:"run"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type BackendConfig struct {
	Name           string        `mapstructure:"name"`
	MemoryBudgetMB int           `mapstructure:"memory_budget_mb"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	LabelPrefix    string        `mapstructure:"label_prefix"`
}

type RunConfig struct {
	Scenarios []string      `mapstructure:"scenarios"`
	Elements  int           `mapstructure:"elements"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidBackends lists the backend names accepted in backend.name. The empty
// name selects the best available backend.
var ValidBackends = []string{"", "native", "rust", "cgo", "software"}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Name:           "",
			MemoryBudgetMB: 0,
			PollInterval:   0,
			LabelPrefix:    "computedemo",
		},
		Run: RunConfig{
			Scenarios: []string{"double", "chain", "normalize"},
			Elements:  1024,
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith loads configuration into v, which may already carry bound flags.
// Flags take precedence over the environment, which takes precedence over
// the config file.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("computedemo")
	}

	v.SetEnvPrefix("COMPUTE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(ValidBackends, c.Backend.Name) {
		return fmt.Errorf("backend.name must be one of: %q", ValidBackends)
	}
	if c.Backend.MemoryBudgetMB < 0 {
		return errors.New("backend.memory_budget_mb must not be negative")
	}
	if c.Backend.PollInterval < 0 {
		return errors.New("backend.poll_interval must not be negative")
	}
	if c.Run.Elements < 1 {
		return errors.New("run.elements must be positive")
	}
	if c.Run.Timeout <= 0 {
		return errors.New("run.timeout must be positive")
	}
	if len(c.Run.Scenarios) == 0 {
		return errors.New("run.scenarios must name at least one scenario")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}
	return nil
}

// MemoryBudget returns the configured budget in bytes.
func (c *Config) MemoryBudget() uint64 {
	return uint64(c.Backend.MemoryBudgetMB) << 20
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend.name", cfg.Backend.Name)
	v.SetDefault("backend.memory_budget_mb", cfg.Backend.MemoryBudgetMB)
	v.SetDefault("backend.poll_interval", cfg.Backend.PollInterval)
	v.SetDefault("backend.label_prefix", cfg.Backend.LabelPrefix)

	v.SetDefault("run.scenarios", cfg.Run.Scenarios)
	v.SetDefault("run.elements", cfg.Run.Elements)
	v.SetDefault("run.timeout", cfg.Run.Timeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
