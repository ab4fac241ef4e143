package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreakerOpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{FailureThreshold: 3, TimeWindow: 2 * time.Second, OpenDuration: 200 * time.Millisecond})
	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("should allow while closed, call %d", i)
		}
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatalf("should be open and deny")
	}
	stats := cb.Stats()
	if stats.State != BreakerOpen {
		t.Fatalf("want open, got %v", stats.State)
	}
	if stats.ConsecutiveFailures != 3 {
		t.Fatalf("want 3 consecutive failures, got %d", stats.ConsecutiveFailures)
	}
	if stats.OpenedAt.IsZero() {
		t.Fatalf("OpenedAt should be set")
	}
}

func TestCircuitBreakerProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{FailureThreshold: 2, TimeWindow: 2 * time.Second, OpenDuration: 100 * time.Millisecond})
	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatalf("should be open")
	}
	time.Sleep(150 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("half-open probe should be admitted")
	}
	// only one probe at a time
	if cb.Allow() {
		t.Fatalf("second concurrent probe should be rejected")
	}
	cb.RecordResult(true)
	if cb.Stats().State != BreakerClosed {
		t.Fatalf("successful probe should close the breaker")
	}
	if !cb.Allow() {
		t.Fatalf("closed breaker should admit")
	}
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{FailureThreshold: 2, TimeWindow: 2 * time.Second, OpenDuration: 80 * time.Millisecond})
	cb.RecordResult(false)
	cb.RecordResult(false)
	time.Sleep(120 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("probe should be admitted")
	}
	cb.RecordResult(false)
	stats := cb.Stats()
	if stats.State != BreakerOpen {
		t.Fatalf("failed probe should reopen, got %v", stats.State)
	}
	if cb.Allow() {
		t.Fatalf("reopened breaker should deny")
	}
}

func TestBreakerOptionsValidate(t *testing.T) {
	if err := (BreakerOptions{}).Validate(); err == nil {
		t.Fatalf("zero options should not validate")
	}
	ok := BreakerOptions{FailureThreshold: 1, TimeWindow: time.Second, OpenDuration: time.Second}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
