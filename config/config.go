// Package config loads processor options from a YAML file with environment
// overrides, using viper. The file uses `taskmesh:` as its root key; env
// vars use the TASKMESH_ prefix (e.g. TASKMESH_MAX_CONCURRENCY).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/swarmguard/taskmesh/engine"
	"github.com/swarmguard/taskmesh/resilience"
)

type retryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Strategy     string        `mapstructure:"strategy"`
	JitterFactor float64       `mapstructure:"jitter_factor"`
}

type breakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	TimeWindow       time.Duration `mapstructure:"time_window"`
	OpenDuration     time.Duration `mapstructure:"open_duration"`
}

type healthConfig struct {
	MinSuccessRate  float64       `mapstructure:"min_success_rate"`
	MaxAvgExecution time.Duration `mapstructure:"max_avg_execution"`
}

type rootConfig struct {
	Taskmesh processorConfig `mapstructure:"taskmesh"`
}

type processorConfig struct {
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	ContinueOnFailure bool          `mapstructure:"continue_on_failure"`
	DetailedTelemetry bool          `mapstructure:"detailed_telemetry"`
	ProgressReporting bool          `mapstructure:"progress_reporting"`
	MemoryPooling     bool          `mapstructure:"memory_pooling"`
	Scheduling        string        `mapstructure:"scheduling"`
	Dependencies      bool          `mapstructure:"dependencies"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
	Retry             retryConfig   `mapstructure:"retry"`
	Breaker           breakerConfig `mapstructure:"breaker"`
	Health            healthConfig  `mapstructure:"health"`
}

// Load reads options from the file at path. Missing keys fall back to the
// engine defaults; environment variables override file values.
func Load(path string) (engine.Options, error) {
	base := engine.DefaultOptions()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `taskmesh.` key prefix maps onto TASKMESH_ env vars via the
	// key replacer (key "taskmesh.max_concurrency" → TASKMESH_MAX_CONCURRENCY).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, base)

	var root rootConfig
	if err := v.Unmarshal(&root); err != nil {
		return base, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return toOptions(root.Taskmesh, base)
}

func setDefaults(v *viper.Viper, base engine.Options) {
	v.SetDefault("taskmesh.max_concurrency", base.MaxConcurrency)
	v.SetDefault("taskmesh.default_timeout", base.DefaultTimeout)
	v.SetDefault("taskmesh.continue_on_failure", base.ContinueOnFailure)
	v.SetDefault("taskmesh.detailed_telemetry", base.EnableDetailedTelemetry)
	v.SetDefault("taskmesh.progress_reporting", base.EnableProgressReporting)
	v.SetDefault("taskmesh.memory_pooling", base.EnableMemoryPooling)
	v.SetDefault("taskmesh.scheduling", "fifo")
	v.SetDefault("taskmesh.dependencies", false)
	v.SetDefault("taskmesh.shutdown_grace", base.ShutdownGrace)

	v.SetDefault("taskmesh.retry.enabled", false)
	v.SetDefault("taskmesh.retry.max_attempts", 3)
	v.SetDefault("taskmesh.retry.base_delay", "100ms")
	v.SetDefault("taskmesh.retry.max_delay", "5s")
	v.SetDefault("taskmesh.retry.strategy", "exponential")
	v.SetDefault("taskmesh.retry.jitter_factor", 0.2)

	v.SetDefault("taskmesh.breaker.enabled", false)
	v.SetDefault("taskmesh.breaker.failure_threshold", 5)
	v.SetDefault("taskmesh.breaker.time_window", "30s")
	v.SetDefault("taskmesh.breaker.open_duration", "10s")

	v.SetDefault("taskmesh.health.min_success_rate", 0.0)
	v.SetDefault("taskmesh.health.max_avg_execution", "0s")
}

func toOptions(cfg processorConfig, base engine.Options) (engine.Options, error) {
	opts := base
	opts.MaxConcurrency = cfg.MaxConcurrency
	opts.DefaultTimeout = cfg.DefaultTimeout
	opts.ContinueOnFailure = cfg.ContinueOnFailure
	opts.EnableDetailedTelemetry = cfg.DetailedTelemetry
	opts.EnableProgressReporting = cfg.ProgressReporting
	opts.EnableMemoryPooling = cfg.MemoryPooling
	opts.ResolveDependencies = cfg.Dependencies
	opts.ShutdownGrace = cfg.ShutdownGrace

	strategy, err := engine.ParseSchedulingStrategy(cfg.Scheduling)
	if err != nil {
		return opts, fmt.Errorf("config: %w", err)
	}
	opts.SchedulingStrategy = strategy

	if cfg.Retry.Enabled {
		backoff, err := resilience.ParseBackoffStrategy(cfg.Retry.Strategy)
		if err != nil {
			return opts, fmt.Errorf("config: %w", err)
		}
		opts.RetryPolicy = &resilience.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			BaseDelay:    cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Strategy:     backoff,
			JitterFactor: cfg.Retry.JitterFactor,
		}
	}
	if cfg.Breaker.Enabled {
		opts.CircuitBreaker = &resilience.BreakerOptions{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			TimeWindow:       cfg.Breaker.TimeWindow,
			OpenDuration:     cfg.Breaker.OpenDuration,
		}
	}
	opts.HealthCheck = engine.HealthCheckOptions{
		MinSuccessRate:      cfg.Health.MinSuccessRate,
		MaxAvgExecutionTime: cfg.Health.MaxAvgExecution,
	}
	return opts, nil
}
