package config

import (
	"time"

	"github.com/vietddude/genledger/internal/infra/compute"
	"github.com/vietddude/genledger/internal/infra/objstore"
	redisclient "github.com/vietddude/genledger/internal/infra/redis"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Jobs     JobsConfig         `yaml:"jobs"`
	Regen    RegenConfig        `yaml:"regeneration"`
	Compute  compute.Config     `yaml:"compute"`
	Storage  objstore.Config    `yaml:"object_storage"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
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

// JobsConfig holds orchestrator settings.
type JobsConfig struct {
	// ConcurrencyCap is the per-account limit on processing jobs.
	ConcurrencyCap int `yaml:"concurrency_cap"`
	// StuckAfter is the age past which a processing job counts as stuck.
	StuckAfter time.Duration `yaml:"stuck_after"`
}

// RegenConfig holds regeneration sweep settings.
type RegenConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}
