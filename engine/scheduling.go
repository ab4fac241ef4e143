package engine

import (
	"fmt"
	"math/rand"
	"sort"
)

// SchedulingStrategy reorders independent tasks before admission. With
// dependency resolution enabled it only reorders within a topological layer.
type SchedulingStrategy int

const (
	ScheduleFIFO SchedulingStrategy = iota
	ScheduleLIFO
	SchedulePriority
	ScheduleShortestJobFirst
	ScheduleRandom
)

func (s SchedulingStrategy) String() string {
	switch s {
	case ScheduleFIFO:
		return "fifo"
	case ScheduleLIFO:
		return "lifo"
	case SchedulePriority:
		return "priority"
	case ScheduleShortestJobFirst:
		return "shortest_job_first"
	case ScheduleRandom:
		return "random"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseSchedulingStrategy maps a configuration string to a strategy.
func ParseSchedulingStrategy(s string) (SchedulingStrategy, error) {
	switch s {
	case "fifo", "":
		return ScheduleFIFO, nil
	case "lifo":
		return ScheduleLIFO, nil
	case "priority":
		return SchedulePriority, nil
	case "shortest_job_first", "sjf":
		return ScheduleShortestJobFirst, nil
	case "random":
		return ScheduleRandom, nil
	default:
		return 0, fmt.Errorf("unknown scheduling strategy %q", s)
	}
}

// orderDefinitions returns defs in admission order. Sorts are stable so ties
// keep submission order.
func orderDefinitions(defs []TaskDefinition, strategy SchedulingStrategy, rng *rand.Rand) []TaskDefinition {
	out := make([]TaskDefinition, len(defs))
	copy(out, defs)
	switch strategy {
	case ScheduleLIFO:
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	case SchedulePriority:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	case ScheduleShortestJobFirst:
		sort.SliceStable(out, func(i, j int) bool { return out[i].EstimatedDuration < out[j].EstimatedDuration })
	case ScheduleRandom:
		if rng != nil {
			rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		}
	}
	return out
}
