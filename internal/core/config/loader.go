package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Jobs.ConcurrencyCap == 0 {
		cfg.Jobs.ConcurrencyCap = 3
	}
	if cfg.Jobs.StuckAfter == 0 {
		cfg.Jobs.StuckAfter = 30 * time.Minute
	}
	if cfg.Regen.SweepInterval == 0 {
		cfg.Regen.SweepInterval = 5 * time.Minute
	}

	return &cfg, nil
}
