// Package telemetry holds per-task measurement records, their aggregate
// summary and exporters that deliver accumulated records to external sinks.
package telemetry

import "time"

// Record is one measurement appended per terminal task completion.
type Record struct {
	TaskName      string    `json:"task_name"`
	ElapsedMillis int64     `json:"elapsed_ms"`
	Successful    bool      `json:"successful"`
	ErrorType     string    `json:"error_type,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Summary aggregates a snapshot of records.
type Summary struct {
	TotalTasks  int     `json:"total_tasks"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	AvgMillis   float64 `json:"avg_ms"`
	MinMillis   int64   `json:"min_ms"`
	MaxMillis   int64   `json:"max_ms"`
	TotalMillis int64   `json:"total_ms"`
	SuccessRate float64 `json:"success_rate"`
}

// Summarize folds a snapshot into a Summary. It is a pure function of its
// input; an empty snapshot yields the zero Summary.
func Summarize(records []Record) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}
	s.TotalTasks = len(records)
	s.MinMillis = records[0].ElapsedMillis
	for _, r := range records {
		if r.Successful {
			s.Successful++
		}
		s.TotalMillis += r.ElapsedMillis
		if r.ElapsedMillis < s.MinMillis {
			s.MinMillis = r.ElapsedMillis
		}
		if r.ElapsedMillis > s.MaxMillis {
			s.MaxMillis = r.ElapsedMillis
		}
	}
	s.Failed = s.TotalTasks - s.Successful
	s.AvgMillis = float64(s.TotalMillis) / float64(s.TotalTasks)
	s.SuccessRate = float64(s.Successful) / float64(s.TotalTasks) * 100
	return s
}
