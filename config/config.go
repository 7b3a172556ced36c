package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultMaxReturnedRows = 1000
	DefaultTimeLimitMs     = 1000
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file to serve.
	Path string `yaml:"path"`

	// MaxReturnedRows caps truncated query results.
	MaxReturnedRows int `yaml:"max_returned_rows,omitempty"`

	// TimeLimitMs is the default wall-clock budget for a single
	// statement, in milliseconds.
	TimeLimitMs int `yaml:"time_limit_ms,omitempty"`

	// Extensions are SQLite extension libraries loaded into every
	// connection. A load failure is fatal.
	Extensions []string `yaml:"extensions,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config with all defaults applied and no database
// path; callers are expected to set the path from flags.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxReturnedRows == 0 {
		c.Database.MaxReturnedRows = DefaultMaxReturnedRows
	}
	if c.Database.TimeLimitMs == 0 {
		c.Database.TimeLimitMs = DefaultTimeLimitMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// TimeLimit returns the statement time budget as a duration.
func (d *DatabaseConfig) TimeLimit() time.Duration {
	return time.Duration(d.TimeLimitMs) * time.Millisecond
}
