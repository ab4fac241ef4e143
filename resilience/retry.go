package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy int

const (
	BackoffFixed BackoffStrategy = iota
	BackoffLinear
	BackoffExponential
	BackoffExponentialJitter
)

func (s BackoffStrategy) String() string {
	switch s {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffExponentialJitter:
		return "exponential_jitter"
	default:
		return fmt.Sprintf("backoff(%d)", int(s))
	}
}

// ParseBackoffStrategy maps a configuration string to a strategy.
func ParseBackoffStrategy(s string) (BackoffStrategy, error) {
	switch s {
	case "fixed":
		return BackoffFixed, nil
	case "linear":
		return BackoffLinear, nil
	case "exponential", "":
		return BackoffExponential, nil
	case "exponential_jitter", "jitter":
		return BackoffExponentialJitter, nil
	default:
		return 0, fmt.Errorf("unknown backoff strategy %q", s)
	}
}

// RetryPolicy describes how many attempts a unit of work gets and how long
// to wait between them. The zero value is not valid; use Validate.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Strategy     BackoffStrategy
	JitterFactor float64
}

// DefaultRetryPolicy is the policy the Resilient preset starts from. The
// Balanced defaults configure no retry policy, so there a task without its
// own policy runs a single attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     BackoffExponential,
		JitterFactor: 0.2,
	}
}

// Validate reports all invalid fields at once.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry: MaxAttempts must be >= 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry: BaseDelay must be > 0, got %v", p.BaseDelay))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, fmt.Errorf("retry: MaxDelay %v must be >= BaseDelay %v", p.MaxDelay, p.BaseDelay))
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		errs = append(errs, fmt.Errorf("retry: JitterFactor must be within [0,1], got %v", p.JitterFactor))
	}
	return errors.Join(errs...)
}

// DelayFor returns the wait applied after attempt (1-based), before attempt+1.
// The result is capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.Strategy {
	case BackoffFixed:
		d = p.BaseDelay
	case BackoffLinear:
		d = p.BaseDelay * time.Duration(attempt)
	case BackoffExponential:
		d = p.BaseDelay << uint(attempt-1)
	case BackoffExponentialJitter:
		d = p.BaseDelay << uint(attempt-1)
		if p.JitterFactor > 0 {
			// uniform in (1-jitter, 1+jitter)
			f := 1 + p.JitterFactor*(2*rand.Float64()-1)
			d = time.Duration(float64(d) * f)
		}
	default:
		d = p.BaseDelay
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = p.MaxDelay
	}
	return d
}

// Do executes fn with the policy. fn receives the 1-based attempt number.
// retryable decides whether a failed attempt may be re-run; a nil retryable
// retries every error. Returns the final value, the number of attempts
// consumed and the terminal error. A cancelled ctx aborts the backoff wait
// and surfaces ctx.Err().
func Do[T any](ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(attempt int) (T, error)) (T, int, error) {
	var zero T
	meter := otel.Meter("taskmesh")
	attemptCounter, _ := meter.Int64Counter("taskmesh_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("taskmesh_retry_success_total")
	failCounter, _ := meter.Int64Counter("taskmesh_retry_fail_total")

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(attempt)
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, attempt, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if retryable != nil && !retryable(err) {
			failCounter.Add(ctx, 1)
			return zero, attempt, lastErr
		}
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, attempt, ctx.Err()
		case <-time.After(p.DelayFor(attempt)):
		}
	}
	failCounter.Add(ctx, 1)
	return zero, attempts, lastErr
}
