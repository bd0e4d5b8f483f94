package config

import (
	"time"

	"github.com/OneClickTag/tracksync/internal/infra/broadcast"
	"github.com/OneClickTag/tracksync/internal/infra/googleapi"
	"github.com/OneClickTag/tracksync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig     `yaml:"server"`
	Database postgres.Config  `yaml:"database"`
	Redis    broadcast.Config `yaml:"redis"`
	Logging  LoggingConfig    `yaml:"logging"`
	Queue    QueueConfig      `yaml:"queue"`
	Google   GoogleConfig     `yaml:"google"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds scheduler and retry settings.
type QueueConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	StuckThreshold time.Duration `yaml:"stuck_threshold"`
	MaxAttempts    int           `yaml:"max_attempts"`
	PauseDivisor   int           `yaml:"pause_divisor"`
}

// GoogleConfig holds credentials for the external sync targets.
type GoogleConfig struct {
	Ads        googleapi.AdsConfig        `yaml:"ads"`
	TagManager googleapi.TagManagerConfig `yaml:"tag_manager"`
}
