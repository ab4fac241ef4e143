package engine

import (
	"fmt"
	"time"

	"github.com/swarmguard/taskmesh/resilience"
	"github.com/swarmguard/taskmesh/telemetry"
)

// HealthCheckOptions sets the thresholds HealthCheck evaluates. Zero values
// disable the corresponding check.
type HealthCheckOptions struct {
	// MinSuccessRate is a percentage in [0,100].
	MinSuccessRate float64
	// MaxAvgExecutionTime bounds the mean task duration.
	MaxAvgExecutionTime time.Duration
	// Checks are user predicates over the current summary; a non-nil error
	// marks the processor unhealthy.
	Checks []func(telemetry.Summary) error
}

func (o HealthCheckOptions) validate() error {
	if o.MinSuccessRate < 0 || o.MinSuccessRate > 100 {
		return fmt.Errorf("health: MinSuccessRate must be within [0,100], got %v", o.MinSuccessRate)
	}
	if o.MaxAvgExecutionTime < 0 {
		return fmt.Errorf("health: MaxAvgExecutionTime must be >= 0, got %v", o.MaxAvgExecutionTime)
	}
	return nil
}

// HealthCheck evaluates the configured thresholds against the current
// telemetry summary and breaker state.
func (p *Processor) HealthCheck() (bool, string) {
	s := p.Summary()
	opts := p.opts.HealthCheck

	if stats := p.BreakerStats(); stats != nil && stats.State == resilience.BreakerOpen {
		return false, fmt.Sprintf("circuit breaker open since %s", stats.OpenedAt.Format(time.RFC3339))
	}
	if s.TotalTasks == 0 {
		return true, "no completed tasks"
	}
	if opts.MinSuccessRate > 0 && s.SuccessRate < opts.MinSuccessRate {
		return false, fmt.Sprintf("success rate %.1f%% below minimum %.1f%%", s.SuccessRate, opts.MinSuccessRate)
	}
	if opts.MaxAvgExecutionTime > 0 && s.AvgMillis > float64(opts.MaxAvgExecutionTime.Milliseconds()) {
		return false, fmt.Sprintf("average execution %.1fms above maximum %dms", s.AvgMillis, opts.MaxAvgExecutionTime.Milliseconds())
	}
	for _, check := range opts.Checks {
		if check == nil {
			continue
		}
		if err := check(s); err != nil {
			return false, err.Error()
		}
	}
	return true, fmt.Sprintf("%d tasks, %.1f%% success", s.TotalTasks, s.SuccessRate)
}
