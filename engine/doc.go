// Package engine executes heterogeneous named tasks under bounded
// concurrency with uniform error classification, retry, circuit breaking,
// dependency ordering, telemetry and incremental progress reporting.
//
// A Processor is built through a Builder (or one of its presets), accepts
// submissions as maps of factories or full TaskDefinitions, and exposes
// snapshots of results, telemetry and progress while runs are in flight:
//
//	proc, err := engine.Resilient().MaxConcurrency(8).Build()
//	if err != nil { ... }
//	defer proc.Close()
//
//	err = proc.ProcessBatch(ctx, map[string]engine.Factory{
//		"weather": fetchWeather,
//		"news":    fetchNews,
//	}, nil)
//	for _, r := range proc.Results() { ... }
package engine
