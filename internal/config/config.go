package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models pulseboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Reports struct {
		DefaultRangeDays int `yaml:"default_range_days"`
		TimeoutSeconds   int `yaml:"timeout_seconds"`
		ActivityLimit    int `yaml:"activity_limit"`
	} `yaml:"reports"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Reports.DefaultRangeDays <= 0 {
		return fmt.Errorf("config.reports.default_range_days must be positive")
	}
	if c.Reports.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.reports.timeout_seconds must be positive")
	}
	if c.Reports.ActivityLimit <= 0 {
		return fmt.Errorf("config.reports.activity_limit must be positive")
	}
	return nil
}

// ReportTimeout returns the fan-out/join timeout as a duration.
func (c *Config) ReportTimeout() time.Duration {
	return time.Duration(c.Reports.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pulseboard.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v0"
	cfg.Reports.DefaultRangeDays = 30
	cfg.Reports.TimeoutSeconds = 5
	cfg.Reports.ActivityLimit = 10
	return &cfg
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Unset report
// knobs fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
