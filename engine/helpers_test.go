package engine

import (
	"context"

	"github.com/swarmguard/taskmesh/telemetry"
)

// exporterFunc adapts a count-observing function to telemetry.Exporter.
type exporterFunc func(ctx context.Context, records int) error

func (f exporterFunc) Export(ctx context.Context, records []telemetry.Record) error {
	return f(ctx, len(records))
}
