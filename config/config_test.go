package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskmesh/engine"
	"github.com/swarmguard/taskmesh/resilience"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
taskmesh:
  max_concurrency: 12
  default_timeout: 15s
  continue_on_failure: false
  detailed_telemetry: true
  memory_pooling: true
  scheduling: priority
  dependencies: true
  retry:
    enabled: true
    max_attempts: 4
    base_delay: 50ms
    max_delay: 2s
    strategy: exponential_jitter
    jitter_factor: 0.3
  breaker:
    enabled: true
    failure_threshold: 7
    time_window: 20s
    open_duration: 5s
  health:
    min_success_rate: 90
    max_avg_execution: 3s
`)

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, opts.MaxConcurrency)
	assert.Equal(t, 15*time.Second, opts.DefaultTimeout)
	assert.False(t, opts.ContinueOnFailure)
	assert.True(t, opts.EnableMemoryPooling)
	assert.Equal(t, engine.SchedulePriority, opts.SchedulingStrategy)
	assert.True(t, opts.ResolveDependencies)

	require.NotNil(t, opts.RetryPolicy)
	assert.Equal(t, 4, opts.RetryPolicy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, opts.RetryPolicy.BaseDelay)
	assert.Equal(t, resilience.BackoffExponentialJitter, opts.RetryPolicy.Strategy)
	assert.InDelta(t, 0.3, opts.RetryPolicy.JitterFactor, 0.001)

	require.NotNil(t, opts.CircuitBreaker)
	assert.Equal(t, 7, opts.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 20*time.Second, opts.CircuitBreaker.TimeWindow)

	assert.Equal(t, 90.0, opts.HealthCheck.MinSuccessRate)
	assert.Equal(t, 3*time.Second, opts.HealthCheck.MaxAvgExecutionTime)

	// options straight from file should build
	p, err := engine.FromOptions(opts).Build()
	require.NoError(t, err)
	_ = p.Close()
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "taskmesh:\n  max_concurrency: 3\n")
	opts, err := Load(path)
	require.NoError(t, err)

	base := engine.DefaultOptions()
	assert.Equal(t, 3, opts.MaxConcurrency)
	assert.Equal(t, base.DefaultTimeout, opts.DefaultTimeout)
	assert.Equal(t, engine.ScheduleFIFO, opts.SchedulingStrategy)
	assert.Nil(t, opts.RetryPolicy)
	assert.Nil(t, opts.CircuitBreaker)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadBadStrategy(t *testing.T) {
	path := writeConfig(t, "taskmesh:\n  scheduling: quantum\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantum")
}
