package runner

import (
	"studynotes/internal/config"
	"time"
)

const (
	defaultWorkers      = 8
	defaultBufferSize   = 1000
	defaultDrainTimeout = 2 * time.Minute
)

// Config holds configuration for the worker pool.
type Config struct {
	Workers      int           // concurrent task goroutines (default: 8)
	BufferSize   int           // queued tasks waiting for a worker (default: 1000)
	DrainTimeout time.Duration // how long shutdown waits for queued tasks (default: 2m)
}

// LoadConfigFromEnv loads runner configuration from environment variables.
func LoadConfigFromEnv() Config {
	cfg := Config{
		Workers:      config.GetIntEnv("RUNNER_WORKERS", defaultWorkers),
		BufferSize:   config.GetIntEnv("RUNNER_BUFFER_SIZE", defaultBufferSize),
		DrainTimeout: config.GetDurationEnv("RUNNER_DRAIN_TIMEOUT", defaultDrainTimeout),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return c
}
