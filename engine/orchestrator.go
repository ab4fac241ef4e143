package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/taskmesh/telemetry"
)

// RunRecord is the archived outcome of one finished run.
type RunRecord struct {
	RunID     string            `json:"run_id"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Results   []TaskResult      `json:"results"`
	Summary   telemetry.Summary `json:"summary"`
}

// RunArchiver persists finished runs. Archive errors are logged, never
// propagated.
type RunArchiver interface {
	SaveRun(ctx context.Context, rec RunRecord) error
}

// execute drives one run: builds the graph, fans tasks out through the
// pipeline under the concurrency cap, tracks progress and exports telemetry
// once at the end. onResult, when set, receives every terminal result in
// completion order (the streaming path).
//
// Apart from ErrProcessorClosed after Close, only two error kinds surface to
// the caller: a *ConfigError before any task runs, and the context error
// after cancellation.
func (p *Processor) execute(ctx context.Context, defs []TaskDefinition, sink func(TaskProgress), onResult func(TaskResult)) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if err := validateDefinitions(defs); err != nil {
		return err
	}
	graph, err := buildGraph(defs, p.opts.SchedulingStrategy, p.randSource(), p.opts.ResolveDependencies)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	runStart := time.Now()
	ctx, span := p.tracer.Start(ctx, "run.execute",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("tasks", len(defs)),
		),
	)
	defer span.End()
	p.inst.runsTotal.Add(ctx, 1)

	// Link the run to the processor's master cancellation source.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.masterCtx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	p.registerRun(runID, cancel)
	defer p.completeRun(runID)

	tracker := newProgressTracker(runID, len(defs))
	telemetryStart := p.telemetry.len()
	resultsStart := p.results.len()

	p.emitProgress(tracker.snapshot(), sink)
	if len(defs) == 0 {
		p.bus.flush()
		return nil
	}

	total := len(defs)
	ready := make(chan *execNode, total)
	resultsCh := make(chan TaskResult, total)
	for _, root := range graph.roots {
		ready <- root
	}

	workers := p.opts.MaxConcurrency
	if workers > total {
		workers = total
	}
	var aborted atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case node, ok := <-ready:
					if !ok {
						return
					}
					skip := node.skip
					if skip == CategoryNone && aborted.Load() {
						skip = CategoryAborted
					}
					res := p.pipeline.run(runCtx, node.def, skip)
					// Flip the abort flag here, before this worker picks up
					// its next task, so a serial run never starts a task
					// past the first failure.
					if !p.opts.ContinueOnFailure && failedOutright(res) {
						aborted.Store(true)
					}
					resultsCh <- res
				}
			}
		}()
	}

	terminal := 0
	handle := func(res TaskResult) {
		terminal++
		prog := tracker.complete(res.Name, res.Successful)
		p.emitProgress(prog, sink)
		p.bus.publishResult(res)
		if onResult != nil {
			onResult(res)
		}

		node := graph.nodes[res.Name]
		for _, child := range node.children {
			if !res.Successful && child.skip == CategoryNone {
				child.skip = CategoryDependencyFailed
			}
			child.indegree--
			if child.indegree == 0 {
				ready <- child
			}
		}
	}

	var runErr error
	cancelled := false
	for terminal < total {
		select {
		case res := <-resultsCh:
			handle(res)
		case <-runCtx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}
	}

	if cancelled {
		runErr = runCtx.Err()
		if ctx.Err() != nil {
			runErr = ctx.Err()
		}
		aborted.Store(true)
		// Give in-flight cooperative factories a bounded window to report.
		grace := time.NewTimer(p.opts.ShutdownGrace)
		defer grace.Stop()
	drain:
		for terminal < total {
			select {
			case res := <-resultsCh:
				handle(res)
			case <-grace.C:
				break drain
			}
		}
		close(ready)
		// Workers blocked in non-cooperative factories publish their results
		// into the processor collections when they eventually return; the
		// run does not wait for them past the grace window.
	} else {
		close(ready)
		wg.Wait()
	}

	p.exportTelemetry(runCtx, telemetryStart)
	p.archiveRun(runID, runStart, resultsStart, telemetryStart)
	p.bus.flush()

	if runErr != nil {
		span.AddEvent("run_cancelled")
		slog.Info("run cancelled", "run_id", runID, "completed", terminal, "total", total)
	}
	return runErr
}

// failedOutright reports a genuine task failure, as opposed to a result the
// run synthesized while skipping or aborting work.
func failedOutright(res TaskResult) bool {
	return !res.Successful &&
		res.ErrorCategory != CategoryDependencyFailed &&
		res.ErrorCategory != CategoryAborted &&
		res.ErrorCategory != CategoryCancellation
}

func (p *Processor) emitProgress(prog TaskProgress, sink func(TaskProgress)) {
	p.lastProgress.Store(&prog)
	p.bus.publishProgress(prog, sink, p.opts.EnableProgressReporting)
}

// exportTelemetry delivers this run's records to the configured exporter,
// once, best-effort.
func (p *Processor) exportTelemetry(ctx context.Context, from int) {
	if !p.opts.EnableDetailedTelemetry || p.opts.Exporter == nil {
		return
	}
	records := p.telemetry.snapshotFrom(from)
	if len(records) == 0 {
		return
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := p.opts.Exporter.Export(ctx, records); err != nil {
		slog.Warn("telemetry export failed", "error", err)
	}
}

func (p *Processor) archiveRun(runID string, started time.Time, resultsFrom, telemetryFrom int) {
	if p.opts.Archiver == nil {
		return
	}
	rec := RunRecord{
		RunID:     runID,
		StartTime: started,
		EndTime:   time.Now(),
		Results:   p.results.snapshotFrom(resultsFrom),
		Summary:   telemetry.Summarize(p.telemetry.snapshotFrom(telemetryFrom)),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.opts.Archiver.SaveRun(ctx, rec); err != nil {
		slog.Warn("run archive failed", "run_id", runID, "error", err)
	}
}
