package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moniteur/ctmon/ctlog"
)

// Config controls which logs are watched and how aggressively.
type Config struct {
	PollInterval time.Duration
	BatchSize    uint64
	Logs         []ctlog.Log
}

// UnmarshalYAML decodes a config file on top of whatever values the Config
// already holds, so absent fields keep their defaults. poll_interval uses Go
// duration syntax ("15s", "2m").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval string      `yaml:"poll_interval"`
		BatchSize    uint64      `yaml:"batch_size"`
		Logs         []ctlog.Log `yaml:"logs"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if raw.BatchSize != 0 {
		c.BatchSize = raw.BatchSize
	}
	if len(raw.Logs) > 0 {
		c.Logs = raw.Logs
	}
	return nil
}

// DefaultConfig returns the built-in log list and polling parameters used
// when no config file or --log-uri flags are given.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		BatchSize:    256,
		Logs: []ctlog.Log{
			{URL: "https://ct.googleapis.com/logs/us1/argon2026h2/", Description: "Google Argon 2026h2"},
			{URL: "https://ct.googleapis.com/logs/eu1/xenon2026h2/", Description: "Google Xenon 2026h2"},
			{URL: "https://ct.cloudflare.com/logs/nimbus2026/", Description: "Cloudflare Nimbus 2026"},
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. Fields left
// out of the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("config %s: poll_interval must be positive", path)
	}
	if cfg.BatchSize == 0 {
		return cfg, fmt.Errorf("config %s: batch_size must be positive", path)
	}
	if len(cfg.Logs) == 0 {
		return cfg, fmt.Errorf("config %s: at least one log is required", path)
	}
	for _, l := range cfg.Logs {
		if l.URL == "" {
			return cfg, fmt.Errorf("config %s: log entry without url", path)
		}
	}
	return cfg, nil
}
