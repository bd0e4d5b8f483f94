package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Queue defaults, matching what the queue package assumes when a knob is
// never set. Kept local so config stays a leaf package.
const (
	defaultTickInterval   = 10 * time.Second
	defaultStuckThreshold = 60 * time.Second
	defaultMaxAttempts    = 4
	defaultPauseDivisor   = 2
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
	if cfg.Queue.TickInterval == 0 {
		cfg.Queue.TickInterval = defaultTickInterval
	}
	if cfg.Queue.StuckThreshold == 0 {
		cfg.Queue.StuckThreshold = defaultStuckThreshold
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Queue.PauseDivisor == 0 {
		cfg.Queue.PauseDivisor = defaultPauseDivisor
	}

	return &cfg, nil
}
