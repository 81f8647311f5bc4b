// Package config holds every tunable delay, timeout, and ceiling in drover.
// Defaults live here and nowhere else; each is overridable through a
// DROVER_* environment variable (e.g. DROVER_SEARCH_DELAY=10s) or a
// .drover/config.yaml file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries the resolved settings. Command flags may still override
// individual fields after loading.
type Config struct {
	// Discovery pacing (§ tracker rate limits)
	SearchDelay     time.Duration // fixed pre-call delay before every primary search
	PostSearchDelay time.Duration // fixed post-call delay after every primary search
	SearchPageSize  int           // page ceiling for cross-repo search queries
	ListPageSize    int           // page ceiling for per-repo listing queries
	RetryPageSize   int           // reduced page size for the single transient retry
	FallbackDelay   time.Duration // delay between repositories during fallback enumeration

	// Link-status batching
	LinkBatchSize  int
	LinkBatchDelay time.Duration

	// Worker pool
	WorkerPoll   time.Duration // idle poll interval when the queue is empty
	AttemptDelay time.Duration // delay between attempts on the same item

	// Monitor loop
	MonitorInterval time.Duration
	ShutdownGrace   time.Duration

	// Watch state machine
	WatchInterval time.Duration

	// Solver
	SolverTimeout time.Duration

	// Resume protocol
	ResumeCushion time.Duration // added after the parsed reset time before re-invoking

	// History ledger
	DBPath string
}

// Load resolves configuration from defaults, an optional .drover/config.yaml,
// and DROVER_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("drover")
	v.AutomaticEnv()

	v.SetDefault("search_delay", 3*time.Second)
	v.SetDefault("post_search_delay", 2*time.Second)
	v.SetDefault("search_page_size", 30)
	v.SetDefault("list_page_size", 100)
	v.SetDefault("retry_page_size", 10)
	v.SetDefault("fallback_delay", 2*time.Second)
	v.SetDefault("link_batch_size", 50)
	v.SetDefault("link_batch_delay", 1*time.Second)
	v.SetDefault("worker_poll", 5*time.Second)
	v.SetDefault("attempt_delay", 10*time.Second)
	v.SetDefault("monitor_interval", 5*time.Minute)
	v.SetDefault("shutdown_grace", 2*time.Minute)
	v.SetDefault("watch_interval", 60*time.Second)
	v.SetDefault("solver_timeout", 30*time.Minute)
	v.SetDefault("resume_cushion", 1*time.Minute)
	v.SetDefault("db_path", ".drover/history.db")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".drover")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is the normal case; anything else is a
		// malformed file the user should hear about.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .drover/config.yaml: %w", err)
		}
	}

	cfg := &Config{
		SearchDelay:     v.GetDuration("search_delay"),
		PostSearchDelay: v.GetDuration("post_search_delay"),
		SearchPageSize:  v.GetInt("search_page_size"),
		ListPageSize:    v.GetInt("list_page_size"),
		RetryPageSize:   v.GetInt("retry_page_size"),
		FallbackDelay:   v.GetDuration("fallback_delay"),
		LinkBatchSize:   v.GetInt("link_batch_size"),
		LinkBatchDelay:  v.GetDuration("link_batch_delay"),
		WorkerPoll:      v.GetDuration("worker_poll"),
		AttemptDelay:    v.GetDuration("attempt_delay"),
		MonitorInterval: v.GetDuration("monitor_interval"),
		ShutdownGrace:   v.GetDuration("shutdown_grace"),
		WatchInterval:   v.GetDuration("watch_interval"),
		SolverTimeout:   v.GetDuration("solver_timeout"),
		ResumeCushion:   v.GetDuration("resume_cushion"),
		DBPath:          v.GetString("db_path"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SearchPageSize <= 0 || c.ListPageSize <= 0 || c.RetryPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.LinkBatchSize <= 0 {
		return fmt.Errorf("link batch size must be positive")
	}
	if c.SolverTimeout <= 0 {
		return fmt.Errorf("solver timeout must be positive")
	}
	return nil
}

// Default returns the built-in defaults without touching the environment.
// Tests use this to get deterministic settings.
func Default() *Config {
	return &Config{
		SearchDelay:     3 * time.Second,
		PostSearchDelay: 2 * time.Second,
		SearchPageSize:  30,
		ListPageSize:    100,
		RetryPageSize:   10,
		FallbackDelay:   2 * time.Second,
		LinkBatchSize:   50,
		LinkBatchDelay:  1 * time.Second,
		WorkerPoll:      5 * time.Second,
		AttemptDelay:    10 * time.Second,
		MonitorInterval: 5 * time.Minute,
		ShutdownGrace:   2 * time.Minute,
		WatchInterval:   60 * time.Second,
		SolverTimeout:   30 * time.Minute,
		ResumeCushion:   1 * time.Minute,
		DBPath:          ".drover/history.db",
	}
}
