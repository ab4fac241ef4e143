package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(defs []TaskDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func TestOrderDefinitions(t *testing.T) {
	defs := []TaskDefinition{
		{Name: "a", Priority: 1, EstimatedDuration: 300 * time.Millisecond},
		{Name: "b", Priority: 5, EstimatedDuration: 100 * time.Millisecond},
		{Name: "c", Priority: 5},
		{Name: "d", Priority: 0, EstimatedDuration: 200 * time.Millisecond},
	}

	tests := []struct {
		name     string
		strategy SchedulingStrategy
		want     []string
	}{
		{"fifo keeps submission order", ScheduleFIFO, []string{"a", "b", "c", "d"}},
		{"lifo reverses", ScheduleLIFO, []string{"d", "c", "b", "a"}},
		{"priority descending, ties by submission", SchedulePriority, []string{"b", "c", "a", "d"}},
		{"sjf ascending, missing treated as zero", ScheduleShortestJobFirst, []string{"c", "b", "d", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orderDefinitions(defs, tt.strategy, nil)
			assert.Equal(t, tt.want, names(got))
			// input untouched
			assert.Equal(t, []string{"a", "b", "c", "d"}, names(defs))
		})
	}
}

func TestOrderDefinitionsRandomDeterministicSeed(t *testing.T) {
	defs := defsNamed("a", "b", "c", "d", "e")
	first := orderDefinitions(defs, ScheduleRandom, rand.New(rand.NewSource(42)))
	second := orderDefinitions(defs, ScheduleRandom, rand.New(rand.NewSource(42)))
	assert.Equal(t, names(first), names(second))
	assert.ElementsMatch(t, names(defs), names(first))
}

func TestParseSchedulingStrategy(t *testing.T) {
	s, err := ParseSchedulingStrategy("priority")
	require.NoError(t, err)
	assert.Equal(t, SchedulePriority, s)

	_, err = ParseSchedulingStrategy("bogus")
	require.Error(t, err)
}
