// Package window provides small sliding-window event counters used by the
// health endpoint (provider error rate) and the rate-limit gauges.
package window

import (
	"sync"
	"time"
)

// Counter counts events in a sliding time window. Safe for concurrent use.
// Old events are pruned on each Record and CountSince call, so memory is
// bounded by the event rate within the retention period.
type Counter struct {
	mu        sync.Mutex
	events    []time.Time
	retention time.Duration
	now       func() time.Time // overridable in tests
}

// NewCounter returns a Counter that retains events for at most retention.
// CountSince queries with a larger window see only retained events.
func NewCounter(retention time.Duration) *Counter {
	return &Counter{retention: retention, now: time.Now}
}

// Record adds one event at the current time.
func (c *Counter) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)
	c.events = append(c.events, now)
}

// CountSince returns the number of events recorded within the last win.
func (c *Counter) CountSince(win time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)
	cutoff := now.Add(-win)
	n := 0
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Before(cutoff) {
			break
		}
		n++
	}
	return n
}

// Reset drops all recorded events.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// prune drops events older than the retention period. Events are appended
// in time order, so the slice stays sorted.
func (c *Counter) prune(now time.Time) {
	cutoff := now.Add(-c.retention)
	i := 0
	for i < len(c.events) && c.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.events = append(c.events[:0], c.events[i:]...)
	}
}

// ErrorRate reports errors and total events within win across an error
// counter and a success counter.
func ErrorRate(errors, successes *Counter, win time.Duration) (errs, total int) {
	errs = errors.CountSince(win)
	total = errs + successes.CountSince(win)
	return errs, total
}
