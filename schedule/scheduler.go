// Package schedule submits fixed task sets to a processor on cron
// expressions, with overlap protection and graceful stop.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/taskmesh/engine"
)

// Submission is a named, recurring batch of task definitions.
type Submission struct {
	// Name identifies the submission; unique within a scheduler.
	Name string
	// CronExpr uses six fields with seconds precision, e.g. "0 */5 * * * *".
	CronExpr string
	Tasks    []engine.TaskDefinition
	// Timeout bounds each triggered run; zero means no bound.
	Timeout time.Duration
	// Enabled submissions fire; disabled ones stay registered.
	Enabled bool
}

type entry struct {
	sub     Submission
	id      cron.EntryID
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// Scheduler triggers recurring runs on a processor.
type Scheduler struct {
	cron *cron.Cron
	proc *engine.Processor

	mu      sync.Mutex
	entries map[string]*entry

	runs  metric.Int64Counter
	fails metric.Int64Counter
	skips metric.Int64Counter
}

// New builds a scheduler with seconds-precision cron.
func New(proc *engine.Processor) *Scheduler {
	meter := otel.Meter("taskmesh")
	runs, _ := meter.Int64Counter("taskmesh_schedule_runs_total")
	fails, _ := meter.Int64Counter("taskmesh_schedule_failures_total")
	skips, _ := meter.Int64Counter("taskmesh_schedule_overlap_skips_total")
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		proc:    proc,
		entries: make(map[string]*entry),
		runs:    runs,
		fails:   fails,
		skips:   skips,
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop stops the cron loop and waits for fired runs to drain, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		slog.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler stop timeout")
		return ctx.Err()
	}
}

// Add registers a submission. Duplicate names are rejected.
func (s *Scheduler) Add(sub Submission) error {
	if sub.Name == "" {
		return fmt.Errorf("submission with empty name")
	}
	if sub.CronExpr == "" {
		return fmt.Errorf("submission %q has no cron expression", sub.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[sub.Name]; dup {
		return fmt.Errorf("submission %q already registered", sub.Name)
	}

	e := &entry{sub: sub}
	id, err := s.cron.AddFunc(sub.CronExpr, func() { s.fire(e) })
	if err != nil {
		return fmt.Errorf("add cron schedule: %w", err)
	}
	e.id = id
	s.entries[sub.Name] = e

	slog.Info("schedule added", "submission", sub.Name, "cron", sub.CronExpr, "entry_id", id)
	return nil
}

// Remove unregisters a submission by name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("submission %q not registered", name)
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	slog.Info("schedule removed", "submission", name)
	return nil
}

// SetEnabled toggles a submission without unregistering it.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("submission %q not registered", name)
	}
	e.mu.Lock()
	e.sub.Enabled = enabled
	e.mu.Unlock()
	return nil
}

// Submissions lists the registered submissions.
func (s *Scheduler) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, e.sub)
		e.mu.Unlock()
	}
	return out
}

func (s *Scheduler) fire(e *entry) {
	e.mu.Lock()
	if !e.sub.Enabled {
		e.mu.Unlock()
		return
	}
	if e.running {
		e.mu.Unlock()
		s.skips.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("submission", e.sub.Name)))
		slog.Warn("previous run still active, skipping trigger", "submission", e.sub.Name)
		return
	}
	e.running = true
	e.lastRun = time.Now()
	sub := e.sub
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ctx := context.Background()
	if sub.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.proc.ProcessDefinitions(ctx, sub.Tasks, nil)
	if err != nil {
		s.fails.Add(ctx, 1, metric.WithAttributes(attribute.String("submission", sub.Name)))
		slog.Error("scheduled run failed",
			"submission", sub.Name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("submission", sub.Name)))
	slog.Info("scheduled run completed",
		"submission", sub.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
