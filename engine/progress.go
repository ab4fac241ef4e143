package engine

import (
	"sync"
	"time"
)

// TaskProgress is a point-in-time snapshot of a run.
type TaskProgress struct {
	RunID          string
	CompletedTasks int
	TotalTasks     int
	// CurrentTaskName is the most recently completed task, not a running
	// one, so displays never race against workers.
	CurrentTaskName string
	ElapsedTime     time.Duration
	// EstimatedTimeRemaining is meaningful only when HasEstimate is true
	// (at least one task must have completed).
	EstimatedTimeRemaining time.Duration
	HasEstimate            bool
	// SuccessRate is the percentage of completed tasks that succeeded.
	SuccessRate float64
}

// CompletionPercentage is completed over total, 0 for an empty run.
func (p TaskProgress) CompletionPercentage() float64 {
	if p.TotalTasks == 0 {
		return 0
	}
	return float64(p.CompletedTasks) / float64(p.TotalTasks) * 100
}

func (p TaskProgress) IsCompleted() bool { return p.CompletedTasks >= p.TotalTasks }

func (p TaskProgress) RemainingTasks() int {
	if r := p.TotalTasks - p.CompletedTasks; r > 0 {
		return r
	}
	return 0
}

// progressTracker counts terminal tasks under a short critical section.
type progressTracker struct {
	mu        sync.Mutex
	runID     string
	total     int
	completed int
	succeeded int
	start     time.Time
	current   string
}

func newProgressTracker(runID string, total int) *progressTracker {
	return &progressTracker{runID: runID, total: total, start: time.Now()}
}

// complete records one terminal task and returns the updated snapshot.
func (t *progressTracker) complete(name string, successful bool) TaskProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	if successful {
		t.succeeded++
	}
	t.current = name
	return t.snapshotLocked()
}

func (t *progressTracker) snapshot() TaskProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *progressTracker) snapshotLocked() TaskProgress {
	elapsed := time.Since(t.start)
	p := TaskProgress{
		RunID:           t.runID,
		CompletedTasks:  t.completed,
		TotalTasks:      t.total,
		CurrentTaskName: t.current,
		ElapsedTime:     elapsed,
	}
	if t.completed > 0 {
		p.SuccessRate = float64(t.succeeded) / float64(t.completed) * 100
		remaining := t.total - t.completed
		p.EstimatedTimeRemaining = time.Duration(float64(elapsed) / float64(t.completed) * float64(remaining))
		p.HasEstimate = true
	}
	return p
}
