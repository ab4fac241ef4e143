package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/swarmguard/taskmesh/resilience"
)

// Factory produces the value of one task. It must honor ctx: the engine
// cancels it on timeout and on run cancellation.
type Factory func(ctx context.Context) (any, error)

// TaskDefinition is the declarative unit of work. Name is the primary key
// for the duration of a run.
type TaskDefinition struct {
	Name              string
	Factory           Factory
	Dependencies      []string
	Priority          int
	EstimatedDuration time.Duration
	// Timeout overrides the processor default when > 0.
	Timeout time.Duration
	// RetryPolicy overrides the processor policy when non-nil.
	RetryPolicy *resilience.RetryPolicy
	Metadata    map[string]string
}

func (d TaskDefinition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("task with empty name")
	}
	if d.Factory == nil {
		return fmt.Errorf("task %q has no factory", d.Name)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("task %q has negative timeout", d.Name)
	}
	if d.RetryPolicy != nil {
		if err := d.RetryPolicy.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", d.Name, err)
		}
	}
	return nil
}

// validateDefinitions rejects invalid and duplicate-named definitions before
// any task runs.
func validateDefinitions(defs []TaskDefinition) error {
	var issues []string
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if err := d.validate(); err != nil {
			issues = append(issues, err.Error())
			continue
		}
		if _, dup := seen[d.Name]; dup {
			issues = append(issues, fmt.Sprintf("duplicate task name %q", d.Name))
			continue
		}
		seen[d.Name] = struct{}{}
	}
	if len(issues) > 0 {
		return newConfigError(issues...)
	}
	return nil
}

// definitionsFromMap converts a name→factory map into definitions in
// deterministic (name-sorted) submission order.
func definitionsFromMap(tasks map[string]Factory) []TaskDefinition {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]TaskDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, TaskDefinition{Name: name, Factory: tasks[name]})
	}
	return defs
}
