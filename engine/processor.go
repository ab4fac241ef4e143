package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskmesh/resilience"
	"github.com/swarmguard/taskmesh/telemetry"
)

// Processor is the single entry point of the engine. It owns the result and
// telemetry collections, the concurrency semaphore, the circuit breaker and
// the event dispatcher, and accepts concurrent submissions until closed.
// Build one with a Builder.
type Processor struct {
	opts Options

	pipeline *pipeline
	breaker  *resilience.CircuitBreaker

	results   collection[TaskResult]
	telemetry collection[telemetry.Record]
	bus       *eventBus

	inst   instruments
	tracer trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand

	masterCtx    context.Context
	masterCancel context.CancelFunc

	lastProgress atomic.Pointer[TaskProgress]

	runsMu sync.Mutex
	runs   map[string]*activeRun

	initialized atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	logger      *slog.Logger
}

// activeRun tracks a run in flight so Close can cancel it.
type activeRun struct {
	id      string
	cancel  context.CancelFunc
	started time.Time
}

func newProcessor(opts Options) *Processor {
	meter := otel.Meter("taskmesh")
	masterCtx, masterCancel := context.WithCancel(context.Background())

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var breaker *resilience.CircuitBreaker
	if opts.CircuitBreaker != nil {
		breaker = resilience.NewCircuitBreaker(*opts.CircuitBreaker)
	}

	retryable := make(map[ErrorCategory]bool, len(opts.RetryableCategories))
	for _, c := range opts.RetryableCategories {
		retryable[c] = true
	}

	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Processor{
		opts:         opts,
		breaker:      breaker,
		bus:          newEventBus(opts.EventBuffer),
		inst:         newInstruments(meter),
		tracer:       otel.Tracer("taskmesh"),
		rng:          rand.New(rand.NewSource(seed)),
		masterCtx:    masterCtx,
		masterCancel: masterCancel,
		runs:         make(map[string]*activeRun),
		logger:       logger,
	}
	p.pipeline = &pipeline{
		sem:              make(chan struct{}, opts.MaxConcurrency),
		breaker:          breaker,
		retry:            opts.RetryPolicy,
		retryable:        retryable,
		defaultTimeout:   opts.DefaultTimeout,
		pool:             newResultPool(opts.PoolSize, opts.EnableMemoryPooling),
		results:          &p.results,
		telemetry:        &p.telemetry,
		telemetryEnabled: opts.EnableDetailedTelemetry,
		inst:             p.inst,
		tracer:           p.tracer,
	}
	return p
}

// Initialize prepares the processor for submissions. It is idempotent; a
// second call is a no-op. Submissions initialize implicitly.
func (p *Processor) Initialize(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProcessorClosed
	}
	if !p.initialized.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.InfoContext(ctx, "processor initialized",
		"max_concurrency", p.opts.MaxConcurrency,
		"strategy", p.opts.SchedulingStrategy.String(),
		"breaker", p.breaker != nil,
		"retry", p.opts.RetryPolicy != nil,
	)
	return nil
}

func (p *Processor) ensureOpen() error {
	if p.closed.Load() {
		return ErrProcessorClosed
	}
	p.initialized.CompareAndSwap(false, true)
	return nil
}

// ProcessBatch executes a name→factory map and completes when every task is
// terminal. Submission order is the name-sorted map order. sink, when
// non-nil, receives every progress report regardless of the progress
// reporting option.
func (p *Processor) ProcessBatch(ctx context.Context, tasks map[string]Factory, sink func(TaskProgress)) error {
	return p.execute(ctx, definitionsFromMap(tasks), sink, nil)
}

// ProcessDefinitions executes full task definitions, honoring dependencies,
// priorities and per-task overrides.
func (p *Processor) ProcessDefinitions(ctx context.Context, defs []TaskDefinition, sink func(TaskProgress)) error {
	return p.execute(ctx, defs, sink, nil)
}

// Results returns a snapshot of every terminal result recorded so far,
// across runs, in completion order.
func (p *Processor) Results() []TaskResult { return p.results.snapshot() }

// Telemetry returns a snapshot of accumulated telemetry records.
func (p *Processor) Telemetry() []telemetry.Record { return p.telemetry.snapshot() }

// Summary folds the current telemetry snapshot.
func (p *Processor) Summary() telemetry.Summary { return telemetry.Summarize(p.telemetry.snapshot()) }

// Progress returns the most recent progress snapshot, or a zero snapshot
// before the first run.
func (p *Processor) Progress() TaskProgress {
	if prog := p.lastProgress.Load(); prog != nil {
		return *prog
	}
	return TaskProgress{}
}

// BreakerStats reports circuit breaker state, or nil when no breaker is
// configured.
func (p *Processor) BreakerStats() *resilience.BreakerStats {
	if p.breaker == nil {
		return nil
	}
	stats := p.breaker.Stats()
	return &stats
}

// OnProgress subscribes fn to progress reports. Subscribers run on the event
// dispatcher goroutine and must not block.
func (p *Processor) OnProgress(fn func(TaskProgress)) { p.bus.subscribeProgress(fn) }

// OnTaskCompleted subscribes fn to terminal task results.
func (p *Processor) OnTaskCompleted(fn func(TaskResult)) { p.bus.subscribeResult(fn) }

func (p *Processor) registerRun(id string, cancel context.CancelFunc) {
	p.runsMu.Lock()
	p.runs[id] = &activeRun{id: id, cancel: cancel, started: time.Now()}
	p.runsMu.Unlock()
}

func (p *Processor) completeRun(id string) {
	p.runsMu.Lock()
	delete(p.runs, id)
	p.runsMu.Unlock()
}

// ActiveRuns returns the ids of runs currently in flight.
func (p *Processor) ActiveRuns() []string {
	p.runsMu.Lock()
	defer p.runsMu.Unlock()
	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	return ids
}

func (p *Processor) randSource() *rand.Rand {
	if p.opts.SchedulingStrategy != ScheduleRandom {
		return nil
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return rand.New(rand.NewSource(p.rng.Int63()))
}

// Close cancels the master cancellation source, cancels every active run,
// makes a final best-effort telemetry export and stops the event
// dispatcher. Idempotent; observability views keep returning the last
// known snapshots afterwards.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.masterCancel()

		p.runsMu.Lock()
		cancelled := 0
		for id, run := range p.runs {
			run.cancel()
			delete(p.runs, id)
			cancelled++
		}
		p.runsMu.Unlock()
		if cancelled > 0 {
			p.logger.Info("cancelled active runs on close", "runs", cancelled)
		}

		if p.opts.EnableDetailedTelemetry && p.opts.Exporter != nil && p.telemetry.len() > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.opts.Exporter.Export(ctx, p.telemetry.snapshot()); err != nil {
				p.logger.Warn("final telemetry export failed", "error", err)
			}
			cancel()
		}
		p.bus.close()
		p.logger.Info("processor closed")
	})
	return nil
}

// Shutdown waits for active runs to drain before closing. When ctx expires
// first, remaining runs are cancelled by Close.
func (p *Processor) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.runsMu.Lock()
		active := len(p.runs)
		p.runsMu.Unlock()
		if active == 0 {
			return p.Close()
		}
		select {
		case <-ctx.Done():
			_ = p.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ExecuteOne runs a single task through the full pipeline and returns its
// value after a checked downcast to T. A produced value of the wrong dynamic
// type fails with a type mismatch category; the recorded TaskResult keeps
// the raw value.
func ExecuteOne[T any](ctx context.Context, p *Processor, name string, factory Factory) (T, error) {
	var zero T
	if factory == nil {
		return zero, newConfigError(fmt.Sprintf("task %q has no factory", name))
	}
	var res TaskResult
	err := p.execute(ctx,
		[]TaskDefinition{{Name: name, Factory: factory}},
		nil,
		func(r TaskResult) { res = r },
	)
	if err != nil {
		return zero, err
	}
	if !res.Successful {
		if res.Err != nil {
			return zero, res.Err
		}
		return zero, Categorize(res.ErrorCategory, fmt.Errorf("task %q failed: %s", name, res.ErrorMessage))
	}
	if res.Data == nil {
		return zero, nil
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, Categorize(CategoryTypeMismatch,
			fmt.Errorf("task %q produced %T, want %T", name, res.Data, zero))
	}
	return v, nil
}
