package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskmesh/resilience"
	"github.com/swarmguard/taskmesh/telemetry"
)

// instruments holds the engine's OTel metric instruments.
type instruments struct {
	taskDuration metric.Float64Histogram
	taskRetries  metric.Int64Counter
	taskFailures metric.Int64Counter
	inflight     metric.Int64UpDownCounter
	runsTotal    metric.Int64Counter
}

func newInstruments(meter metric.Meter) instruments {
	taskDuration, _ := meter.Float64Histogram("taskmesh_task_duration_ms")
	taskRetries, _ := meter.Int64Counter("taskmesh_task_retries_total")
	taskFailures, _ := meter.Int64Counter("taskmesh_task_failures_total")
	inflight, _ := meter.Int64UpDownCounter("taskmesh_tasks_inflight")
	runsTotal, _ := meter.Int64Counter("taskmesh_runs_total")
	return instruments{
		taskDuration: taskDuration,
		taskRetries:  taskRetries,
		taskFailures: taskFailures,
		inflight:     inflight,
		runsTotal:    runsTotal,
	}
}

// pipeline executes the per-task lifecycle: semaphore admission, breaker
// gate, retry-wrapped invocation with per-attempt timeout, classification
// and publication. One pipeline is shared by every run of a processor; the
// semaphore is the hard concurrency cap.
type pipeline struct {
	sem              chan struct{}
	breaker          *resilience.CircuitBreaker
	retry            *resilience.RetryPolicy
	retryable        map[ErrorCategory]bool
	defaultTimeout   time.Duration
	pool             *resultPool
	results          *collection[TaskResult]
	telemetry        *collection[telemetry.Record]
	telemetryEnabled bool
	inst             instruments
	tracer           trace.Tracer
}

// run executes one task to its terminal result. A non-None skip synthesizes
// the result without admission or factory invocation. The returned value is
// the published defensive copy.
func (pl *pipeline) run(ctx context.Context, def TaskDefinition, skip ErrorCategory) TaskResult {
	ctx, span := pl.tracer.Start(ctx, "task.execute",
		trace.WithAttributes(attribute.String("task", def.Name)),
	)
	defer span.End()

	res := pl.pool.acquire()
	res.Name = def.Name
	res.StartTime = time.Now()
	res.AttemptNumber = 1
	res.ErrorCategory = CategoryNone
	if len(def.Metadata) > 0 {
		res.Metadata = make(map[string]string, len(def.Metadata))
		for k, v := range def.Metadata {
			res.Metadata[k] = v
		}
	}

	switch {
	case skip != CategoryNone:
		pl.fail(res, skip, Categorize(skip, fmt.Errorf("task %q skipped: %s", def.Name, skip)))
		span.AddEvent("skipped", trace.WithAttributes(attribute.String("category", string(skip))))

	default:
		select {
		case pl.sem <- struct{}{}:
			func() {
				defer func() { <-pl.sem }()
				if pl.breaker != nil && !pl.breaker.Allow() {
					pl.fail(res, CategoryCircuitOpen, Categorize(CategoryCircuitOpen,
						fmt.Errorf("task %q rejected: circuit breaker open", def.Name)))
					span.AddEvent("circuit_open")
					return
				}
				pl.inst.inflight.Add(ctx, 1)
				pl.invoke(ctx, def, res)
				pl.inst.inflight.Add(ctx, -1)
				if pl.breaker != nil {
					pl.breaker.RecordResult(res.Successful)
				}
			}()

		case <-ctx.Done():
			pl.fail(res, CategoryCancellation, Categorize(CategoryCancellation, ctx.Err()))
		}
	}

	res.Timestamp = time.Now()
	out := res.clone()
	pl.publish(ctx, out, span)
	pl.pool.release(res)
	return out
}

// invoke runs the factory through the retry loop, one timeout scope per
// attempt, and classifies the terminal outcome into res.
func (pl *pipeline) invoke(ctx context.Context, def TaskDefinition, res *TaskResult) {
	policy := pl.retry
	if def.RetryPolicy != nil {
		policy = def.RetryPolicy
	}
	single := resilience.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	if policy == nil {
		policy = &single
	}
	timeout := pl.defaultTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}

	var lastDuration time.Duration
	value, attempts, err := resilience.Do(ctx, *policy,
		func(err error) bool { return pl.retryable[CategoryOf(err)] },
		func(attempt int) (any, error) {
			started := time.Now()
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			v, err := callFactory(attemptCtx, def.Factory)
			cancel()
			lastDuration = time.Since(started)
			if err == nil {
				return v, nil
			}
			// Outer cancellation propagates as cancellation; an expired
			// attempt deadline classifies as timeout.
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
				return nil, Categorize(CategoryCancellation, ctx.Err())
			}
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) &&
				(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
				return nil, Categorize(CategoryTimeout,
					fmt.Errorf("task %q timed out after %v: %w", def.Name, timeout, err))
			}
			return nil, err
		})

	res.AttemptNumber = attempts
	res.ExecutionTime = lastDuration
	if attempts > 1 {
		pl.inst.taskRetries.Add(ctx, int64(attempts-1),
			metric.WithAttributes(attribute.String("task", def.Name)))
	}
	if err == nil {
		res.Successful = true
		res.Data = value
		return
	}
	pl.fail(res, CategoryOf(err), err)
}

// callFactory invokes the user factory, converting panics into errors.
func callFactory(ctx context.Context, f Factory) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return f(ctx)
}

func (pl *pipeline) fail(res *TaskResult, category ErrorCategory, err error) {
	res.Successful = false
	res.Data = nil
	res.ErrorCategory = category
	res.Err = err
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	res.Retryable = pl.retryable[category]
}

// publish appends the terminal result and its telemetry record.
func (pl *pipeline) publish(ctx context.Context, out TaskResult, span trace.Span) {
	pl.results.add(out)
	if pl.telemetryEnabled {
		pl.telemetry.add(telemetry.Record{
			TaskName:      out.Name,
			ElapsedMillis: out.ExecutionTime.Milliseconds(),
			Successful:    out.Successful,
			ErrorType:     errorTypeName(out.Err),
			ErrorMessage:  out.ErrorMessage,
			Timestamp:     out.Timestamp,
		})
	}
	pl.inst.taskDuration.Record(ctx, float64(out.ExecutionTime.Milliseconds()),
		metric.WithAttributes(
			attribute.String("task", out.Name),
			attribute.Bool("successful", out.Successful),
		),
	)
	if !out.Successful {
		pl.inst.taskFailures.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("task", out.Name),
				attribute.String("category", string(out.ErrorCategory)),
			),
		)
		span.AddEvent("task_failed", trace.WithAttributes(
			attribute.String("category", string(out.ErrorCategory)),
		))
	}
}
