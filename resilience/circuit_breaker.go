package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

// BreakerState is the admission state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BreakerOptions configures a CircuitBreaker.
type BreakerOptions struct {
	// FailureThreshold is the number of in-window failures that opens the breaker.
	FailureThreshold int
	// TimeWindow is the length of the rolling window failures are counted over.
	TimeWindow time.Duration
	// OpenDuration is how long the breaker rejects before admitting a probe.
	OpenDuration time.Duration
	// Buckets is the window resolution. Defaults to 10.
	Buckets int
}

// Validate reports all invalid fields at once.
func (o BreakerOptions) Validate() error {
	var errs []error
	if o.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("breaker: FailureThreshold must be >= 1, got %d", o.FailureThreshold))
	}
	if o.TimeWindow <= 0 {
		errs = append(errs, fmt.Errorf("breaker: TimeWindow must be > 0, got %v", o.TimeWindow))
	}
	if o.OpenDuration <= 0 {
		errs = append(errs, fmt.Errorf("breaker: OpenDuration must be > 0, got %v", o.OpenDuration))
	}
	return errors.Join(errs...)
}

// BreakerStats is an observable snapshot of breaker state.
type BreakerStats struct {
	State               BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitBreaker gates admissions on the recent failure count over a rolling
// window. Closed admits everything; Open rejects everything until
// OpenDuration has elapsed; HalfOpen admits a single probe whose outcome
// decides the next state.
type CircuitBreaker struct {
	mu sync.Mutex

	opts BreakerOptions

	state               BreakerState
	openedAt            time.Time
	consecutiveFailures int
	probeInFlight       bool
	window              *slidingWindow
}

// NewCircuitBreaker constructs a breaker with the given options.
func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	if opts.Buckets <= 0 {
		opts.Buckets = 10
	}
	return &CircuitBreaker{
		opts:   opts,
		state:  BreakerClosed,
		window: newSlidingWindow(opts.TimeWindow, opts.Buckets),
	}
}

// Allow returns whether a call is admitted. In HalfOpen only one probe is
// admitted at a time; further calls are rejected until the probe reports.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case BreakerOpen:
		if time.Since(c.openedAt) < c.opts.OpenDuration {
			return false
		}
		c.state = BreakerHalfOpen
		c.probeInFlight = true
		return true
	case BreakerHalfOpen:
		if c.probeInFlight {
			return false
		}
		c.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordResult records a terminal call outcome and drives state transitions.
func (c *CircuitBreaker) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.add(success)
	if success {
		c.consecutiveFailures = 0
	} else {
		c.consecutiveFailures++
	}

	switch c.state {
	case BreakerClosed:
		if _, failures := c.window.stats(); failures >= c.opts.FailureThreshold {
			c.transitionToOpen()
		}
	case BreakerHalfOpen:
		c.probeInFlight = false
		if success {
			c.reset()
		} else {
			c.transitionToOpen()
		}
	case BreakerOpen:
		// nothing, Allow handles timing
	}
}

// Stats returns a snapshot of the breaker state.
func (c *CircuitBreaker) Stats() BreakerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BreakerStats{
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
		OpenedAt:            c.openedAt,
	}
}

func (c *CircuitBreaker) transitionToOpen() {
	meter := otel.GetMeterProvider().Meter("taskmesh")
	c.state = BreakerOpen
	c.openedAt = time.Now()
	c.probeInFlight = false
	counter, _ := meter.Int64Counter("taskmesh_breaker_open_total")
	counter.Add(context.Background(), 1)
}

func (c *CircuitBreaker) reset() {
	meter := otel.GetMeterProvider().Meter("taskmesh")
	c.state = BreakerClosed
	c.openedAt = time.Time{}
	c.consecutiveFailures = 0
	c.window.reset()
	counter, _ := meter.Int64Counter("taskmesh_breaker_closed_total")
	counter.Add(context.Background(), 1)
}

// slidingWindow implements fixed-size time buckets storing success/failure counts.
type slidingWindow struct {
	size     time.Duration
	buckets  int
	interval time.Duration
	data     []bucket
	stamps   []int64
	nowFn    func() time.Time
}

type bucket struct{ success, fail int }

func newSlidingWindow(size time.Duration, buckets int) *slidingWindow {
	return &slidingWindow{
		size:     size,
		buckets:  buckets,
		interval: size / time.Duration(buckets),
		data:     make([]bucket, buckets),
		stamps:   make([]int64, buckets),
		nowFn:    time.Now,
	}
}

func (w *slidingWindow) slot(now time.Time) (idx int, stamp int64) {
	stamp = now.UnixNano() / w.interval.Nanoseconds()
	return int(stamp % int64(w.buckets)), stamp
}

func (w *slidingWindow) add(success bool) {
	idx, stamp := w.slot(w.nowFn())
	if w.stamps[idx] != stamp {
		w.data[idx] = bucket{}
		w.stamps[idx] = stamp
	}
	if success {
		w.data[idx].success++
	} else {
		w.data[idx].fail++
	}
}

func (w *slidingWindow) stats() (total int, failures int) {
	_, current := w.slot(w.nowFn())
	for i, b := range w.data {
		// skip buckets that rolled out of the window
		if current-w.stamps[i] >= int64(w.buckets) {
			continue
		}
		total += b.success + b.fail
		failures += b.fail
	}
	return
}

func (w *slidingWindow) reset() {
	for i := range w.data {
		w.data[i] = bucket{}
		w.stamps[i] = 0
	}
}
