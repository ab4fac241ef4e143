package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskmesh/engine"
	"github.com/swarmguard/taskmesh/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string) engine.RunRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return engine.RunRecord{
		RunID:     id,
		StartTime: now.Add(-time.Second),
		EndTime:   now,
		Results: []engine.TaskResult{
			{Name: "a", Successful: true, Data: "payload", ErrorCategory: engine.CategoryNone},
			{Name: "b", Successful: false, ErrorCategory: engine.CategoryTimeout, ErrorMessage: "too slow"},
		},
		Summary: telemetry.Summary{TotalTasks: 2, Successful: 1, Failed: 1, SuccessRate: 50},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleRun("run-1")))

	rec, found, err := s.Run(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run-1", rec.RunID)
	require.Len(t, rec.Results, 2)
	assert.Equal(t, "a", rec.Results[0].Name)
	assert.Equal(t, engine.CategoryTimeout, rec.Results[1].ErrorCategory)
	assert.Equal(t, 50.0, rec.Summary.SuccessRate)
}

func TestRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Run(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.SaveRun(ctx, sampleRun(id)))
	}

	all, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestStoreAsArchiver(t *testing.T) {
	s := openTestStore(t)
	var _ engine.RunArchiver = s

	proc, err := engine.NewBuilder().MaxConcurrency(2).Archiver(s).Build()
	require.NoError(t, err)
	defer proc.Close()

	require.NoError(t, proc.ProcessBatch(context.Background(), map[string]engine.Factory{
		"only": func(ctx context.Context) (any, error) { return "v", nil },
	}, nil))

	runs, err := s.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Results, 1)
	assert.True(t, runs[0].Results[0].Successful)
}
