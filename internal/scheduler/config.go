package scheduler

import (
	"time"

	"github.com/anoteng/regnskap/internal/config"
)

// Config controls the runner tick and per-job deadlines.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// EnabledJobs limits the runner to the named jobs. Empty runs all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
		JobTimeout:  10 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.BankSync.RunnerInterval,
		JobTimeout:  cfg.BankSync.RunnerJobTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
