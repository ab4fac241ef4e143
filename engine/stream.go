package engine

import (
	"context"
	"log/slog"
)

// streamBuffer caps the channel a streaming run delivers through.
const streamBuffer = 100

// ProcessStream executes a name→factory map and yields results in
// completion order over a bounded channel. The channel is closed when every
// task is terminal or the run is cancelled; cancelling ctx stops producers.
// Configuration problems surface before the first result.
func (p *Processor) ProcessStream(ctx context.Context, tasks map[string]Factory) (<-chan TaskResult, error) {
	defs := definitionsFromMap(tasks)
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if err := validateDefinitions(defs); err != nil {
		return nil, err
	}
	if _, err := buildGraph(defs, p.opts.SchedulingStrategy, p.randSource(), p.opts.ResolveDependencies); err != nil {
		return nil, err
	}

	capacity := len(defs)
	if capacity > streamBuffer {
		capacity = streamBuffer
	}
	if capacity < 1 {
		capacity = 1
	}
	out := make(chan TaskResult, capacity)

	go func() {
		defer close(out)
		err := p.execute(ctx, defs, nil, func(r TaskResult) {
			select {
			case out <- r:
			case <-ctx.Done():
			}
		})
		if err != nil {
			slog.Debug("stream run ended", "error", err)
		}
	}()
	return out, nil
}
