package engine

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskmesh/resilience"
)

func TestBuildCollatesValidationErrors(t *testing.T) {
	_, err := NewBuilder().
		MaxConcurrency(0).
		DefaultTimeout(-time.Second).
		Retry(resilience.RetryPolicy{MaxAttempts: 0, BaseDelay: 0, MaxDelay: -1}).
		Breaker(resilience.BreakerOptions{}).
		Build()

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.GreaterOrEqual(t, len(cfgErr.Issues), 4)
}

func TestBuildDefaults(t *testing.T) {
	p, err := NewBuilder().Build()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 2*runtime.NumCPU(), p.opts.MaxConcurrency)
	assert.True(t, p.opts.ContinueOnFailure)
	assert.Equal(t, DefaultRetryableCategories(), p.opts.RetryableCategories)
	assert.Nil(t, p.BreakerStats())
}

func TestPresets(t *testing.T) {
	ht, err := HighThroughput().Build()
	require.NoError(t, err)
	defer ht.Close()
	assert.True(t, ht.opts.EnableMemoryPooling)
	assert.False(t, ht.opts.EnableDetailedTelemetry)
	assert.Greater(t, ht.opts.MaxConcurrency, 2*runtime.NumCPU())

	res, err := Resilient().Build()
	require.NoError(t, err)
	defer res.Close()
	require.NotNil(t, res.opts.RetryPolicy)
	assert.Equal(t, resilience.BackoffExponentialJitter, res.opts.RetryPolicy.Strategy)
	require.NotNil(t, res.opts.CircuitBreaker)
	assert.True(t, res.opts.ContinueOnFailure)

	ll, err := LowLatency().Build()
	require.NoError(t, err)
	defer ll.Close()
	assert.Nil(t, ll.opts.RetryPolicy)
	assert.Equal(t, 2*time.Second, ll.opts.DefaultTimeout)

	dev, err := Development().Build()
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, 2, dev.opts.MaxConcurrency)
}

func TestFromOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxConcurrency = 7
	p, err := FromOptions(opts).Build()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 7, p.opts.MaxConcurrency)
}
