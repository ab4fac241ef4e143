package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/swarmguard/taskmesh/resilience"
	"github.com/swarmguard/taskmesh/telemetry"
)

// Options is the full processor configuration. Use DefaultOptions or a
// Builder preset as the base and override what differs.
type Options struct {
	// MaxConcurrency is the hard cap on in-flight factories.
	MaxConcurrency int
	// DefaultTimeout bounds each factory attempt unless the definition
	// overrides it.
	DefaultTimeout time.Duration
	// ContinueOnFailure keeps scheduling after a task fails. When false the
	// remaining unstarted tasks are recorded as aborted without invoking
	// their factories.
	ContinueOnFailure bool
	// EnableDetailedTelemetry governs whether telemetry records are
	// collected and exported.
	EnableDetailedTelemetry bool
	// EnableProgressReporting gates progress fan-out to subscribers; an
	// explicit sink passed to a submission is always invoked.
	EnableProgressReporting bool
	// EnableMemoryPooling reuses result objects through a bounded pool.
	EnableMemoryPooling bool
	PoolSize            int

	SchedulingStrategy SchedulingStrategy
	// ResolveDependencies enables topological ordering over task
	// dependencies. When disabled, declared dependencies are rejected.
	ResolveDependencies bool

	// RetryPolicy, when non-nil, wraps every factory invocation. Tasks may
	// override it per definition.
	RetryPolicy *resilience.RetryPolicy
	// RetryableCategories is the set of error categories the retry loop
	// re-invokes for. Defaults to DefaultRetryableCategories.
	RetryableCategories []ErrorCategory

	// CircuitBreaker, when non-nil, gates every admission.
	CircuitBreaker *resilience.BreakerOptions

	// Exporter receives accumulated telemetry once per run.
	Exporter telemetry.Exporter
	// Archiver persists finished runs.
	Archiver RunArchiver

	HealthCheck HealthCheckOptions

	// ShutdownGrace is the window in-flight tasks get to report after the
	// run is cancelled.
	ShutdownGrace time.Duration
	// EventBuffer sizes the event dispatch queue.
	EventBuffer int
	// RandomSeed seeds the random scheduling strategy; 0 seeds from the
	// clock.
	RandomSeed int64

	Logger *slog.Logger
}

// DefaultOptions is the Balanced configuration.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:          2 * runtime.NumCPU(),
		DefaultTimeout:          30 * time.Second,
		ContinueOnFailure:       true,
		EnableDetailedTelemetry: true,
		EnableProgressReporting: true,
		EnableMemoryPooling:     false,
		PoolSize:                256,
		SchedulingStrategy:      ScheduleFIFO,
		RetryableCategories:     DefaultRetryableCategories(),
		ShutdownGrace:           2 * time.Second,
		EventBuffer:             1024,
	}
}

// Builder assembles a Processor with fluent configuration.
type Builder struct {
	opts Options
}

// NewBuilder starts from the Balanced defaults.
func NewBuilder() *Builder { return &Builder{opts: DefaultOptions()} }

// Balanced is the default preset.
func Balanced() *Builder { return NewBuilder() }

// HighThroughput raises concurrency, keeps a simple fixed retry, enables
// pooling and drops detailed telemetry.
func HighThroughput() *Builder {
	b := NewBuilder()
	b.opts.MaxConcurrency = 8 * runtime.NumCPU()
	b.opts.EnableMemoryPooling = true
	b.opts.EnableDetailedTelemetry = false
	b.opts.RetryPolicy = &resilience.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Strategy:    resilience.BackoffFixed,
	}
	return b
}

// Resilient enables network retry with jitter, a circuit breaker and
// continue-on-failure.
func Resilient() *Builder {
	b := NewBuilder()
	retry := resilience.DefaultRetryPolicy()
	retry.Strategy = resilience.BackoffExponentialJitter
	b.opts.RetryPolicy = &retry
	b.opts.CircuitBreaker = &resilience.BreakerOptions{
		FailureThreshold: 5,
		TimeWindow:       30 * time.Second,
		OpenDuration:     10 * time.Second,
	}
	b.opts.ContinueOnFailure = true
	return b
}

// LowLatency shortens the default timeout and disables retry.
func LowLatency() *Builder {
	b := NewBuilder()
	b.opts.DefaultTimeout = 2 * time.Second
	b.opts.RetryPolicy = nil
	return b
}

// Development lowers concurrency for predictable local debugging.
func Development() *Builder {
	b := NewBuilder()
	b.opts.MaxConcurrency = 2
	b.opts.EnableDetailedTelemetry = true
	b.opts.EnableProgressReporting = true
	return b
}

// FromOptions starts a builder from a fully-populated Options value, e.g.
// one loaded from configuration.
func FromOptions(opts Options) *Builder { return &Builder{opts: opts} }

func (b *Builder) MaxConcurrency(n int) *Builder { b.opts.MaxConcurrency = n; return b }

func (b *Builder) DefaultTimeout(d time.Duration) *Builder { b.opts.DefaultTimeout = d; return b }

func (b *Builder) ContinueOnFailure(v bool) *Builder { b.opts.ContinueOnFailure = v; return b }

func (b *Builder) DetailedTelemetry(v bool) *Builder { b.opts.EnableDetailedTelemetry = v; return b }

func (b *Builder) ProgressReporting(v bool) *Builder { b.opts.EnableProgressReporting = v; return b }

func (b *Builder) MemoryPooling(v bool) *Builder { b.opts.EnableMemoryPooling = v; return b }

func (b *Builder) Scheduling(s SchedulingStrategy) *Builder { b.opts.SchedulingStrategy = s; return b }

func (b *Builder) ResolveDependencies(v bool) *Builder { b.opts.ResolveDependencies = v; return b }

func (b *Builder) Retry(policy resilience.RetryPolicy) *Builder {
	b.opts.RetryPolicy = &policy
	return b
}

func (b *Builder) NoRetry() *Builder { b.opts.RetryPolicy = nil; return b }

func (b *Builder) RetryableCategories(categories ...ErrorCategory) *Builder {
	b.opts.RetryableCategories = categories
	return b
}

func (b *Builder) Breaker(opts resilience.BreakerOptions) *Builder {
	b.opts.CircuitBreaker = &opts
	return b
}

func (b *Builder) Exporter(e telemetry.Exporter) *Builder { b.opts.Exporter = e; return b }

func (b *Builder) Archiver(a RunArchiver) *Builder { b.opts.Archiver = a; return b }

func (b *Builder) Health(opts HealthCheckOptions) *Builder { b.opts.HealthCheck = opts; return b }

func (b *Builder) ShutdownGrace(d time.Duration) *Builder { b.opts.ShutdownGrace = d; return b }

func (b *Builder) RandomSeed(seed int64) *Builder { b.opts.RandomSeed = seed; return b }

func (b *Builder) Logger(l *slog.Logger) *Builder { b.opts.Logger = l; return b }

// Build validates the configuration and constructs the Processor. All
// problems are collated into a single *ConfigError.
func (b *Builder) Build() (*Processor, error) {
	opts := b.opts
	var issues []string
	if opts.MaxConcurrency <= 0 {
		issues = append(issues, fmt.Sprintf("MaxConcurrency must be > 0, got %d", opts.MaxConcurrency))
	}
	if opts.DefaultTimeout <= 0 {
		issues = append(issues, fmt.Sprintf("DefaultTimeout must be > 0, got %v", opts.DefaultTimeout))
	}
	if opts.ShutdownGrace <= 0 {
		issues = append(issues, fmt.Sprintf("ShutdownGrace must be > 0, got %v", opts.ShutdownGrace))
	}
	if opts.RetryPolicy != nil {
		if err := opts.RetryPolicy.Validate(); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if opts.CircuitBreaker != nil {
		if err := opts.CircuitBreaker.Validate(); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if err := opts.HealthCheck.validate(); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) > 0 {
		return nil, newConfigError(issues...)
	}
	if opts.RetryableCategories == nil {
		opts.RetryableCategories = DefaultRetryableCategories()
	}
	return newProcessor(opts), nil
}
