package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	tr := newProgressTracker("run-1", 4)

	p := tr.snapshot()
	assert.Equal(t, 0, p.CompletedTasks)
	assert.Equal(t, 4, p.TotalTasks)
	assert.False(t, p.HasEstimate)
	assert.False(t, p.IsCompleted())
	assert.Equal(t, 4, p.RemainingTasks())

	p = tr.complete("a", true)
	assert.Equal(t, 1, p.CompletedTasks)
	assert.Equal(t, "a", p.CurrentTaskName)
	assert.True(t, p.HasEstimate)
	assert.InDelta(t, 100.0, p.SuccessRate, 0.001)
	assert.InDelta(t, 25.0, p.CompletionPercentage(), 0.001)

	p = tr.complete("b", false)
	assert.InDelta(t, 50.0, p.SuccessRate, 0.001)

	tr.complete("c", true)
	p = tr.complete("d", true)
	assert.True(t, p.IsCompleted())
	assert.Equal(t, 0, p.RemainingTasks())
	assert.InDelta(t, 75.0, p.SuccessRate, 0.001)
}

func TestProgressEmptyRun(t *testing.T) {
	tr := newProgressTracker("run-2", 0)
	p := tr.snapshot()
	assert.True(t, p.IsCompleted())
	assert.Zero(t, p.CompletionPercentage())
	assert.False(t, p.HasEstimate)
}
