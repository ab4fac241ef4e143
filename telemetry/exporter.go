package telemetry

import (
	"context"
	"log/slog"
)

// Exporter receives the records accumulated during a run, once per run.
// Export errors are logged by the caller and never propagated.
type Exporter interface {
	Export(ctx context.Context, records []Record) error
}

// LogExporter writes a run summary and per-record lines through slog.
type LogExporter struct {
	Logger *slog.Logger
}

func (e *LogExporter) Export(ctx context.Context, records []Record) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := Summarize(records)
	logger.InfoContext(ctx, "telemetry export",
		"tasks", s.TotalTasks,
		"successful", s.Successful,
		"failed", s.Failed,
		"avg_ms", s.AvgMillis,
		"success_rate", s.SuccessRate,
	)
	for _, r := range records {
		logger.DebugContext(ctx, "task telemetry",
			"task", r.TaskName,
			"elapsed_ms", r.ElapsedMillis,
			"successful", r.Successful,
			"error_type", r.ErrorType,
		)
	}
	return nil
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(ctx context.Context, records []Record) error

func (f ExporterFunc) Export(ctx context.Context, records []Record) error {
	return f(ctx, records)
}
