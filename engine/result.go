package engine

import "time"

// TaskResult is the terminal outcome record of one task in one run.
type TaskResult struct {
	Name string `json:"name"`
	// Data holds the produced value. It is nil on failure and may
	// legitimately be nil on success; distinguish via Successful.
	Data          any           `json:"data,omitempty"`
	Successful    bool          `json:"successful"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category"`
	Err           error         `json:"-"`
	Retryable     bool          `json:"retryable"`
	// AttemptNumber is 1 for a first-try success and >= 2 after retries.
	AttemptNumber int       `json:"attempt_number"`
	StartTime     time.Time `json:"start_time"`
	Timestamp     time.Time `json:"timestamp"`
	// ExecutionTime is measured monotonically over the final attempt.
	ExecutionTime time.Duration     `json:"execution_time"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// reset clears all fields so a pooled result can be reused.
func (r *TaskResult) reset() {
	*r = TaskResult{}
}

// clone returns a defensive copy safe to publish while r returns to the pool.
func (r *TaskResult) clone() TaskResult {
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
