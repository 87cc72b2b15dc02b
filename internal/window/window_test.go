package window

import (
	"sync"
	"testing"
	"time"
)

// fakeClock hands Counters a controllable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestCounterCountSince(t *testing.T) {
	clock := newFakeClock()
	c := NewCounter(time.Minute)
	c.now = clock.now

	c.Record()
	c.Record()
	clock.advance(30 * time.Second)
	c.Record()

	if got := c.CountSince(time.Minute); got != 3 {
		t.Errorf("CountSince(1m) = %d, want 3", got)
	}
	if got := c.CountSince(10 * time.Second); got != 1 {
		t.Errorf("CountSince(10s) = %d, want 1", got)
	}
}

func TestCounterPrunesOldEvents(t *testing.T) {
	clock := newFakeClock()
	c := NewCounter(time.Minute)
	c.now = clock.now

	c.Record()
	clock.advance(2 * time.Minute)
	c.Record()

	// The first event fell out of the retention period, so even a huge
	// query window sees only the recent one.
	if got := c.CountSince(time.Hour); got != 1 {
		t.Errorf("CountSince(1h) after retention = %d, want 1", got)
	}
}

func TestCounterReset(t *testing.T) {
	clock := newFakeClock()
	c := NewCounter(time.Minute)
	c.now = clock.now

	c.Record()
	c.Record()
	c.Reset()
	if got := c.CountSince(time.Minute); got != 0 {
		t.Errorf("CountSince after Reset = %d, want 0", got)
	}
}

func TestErrorRate(t *testing.T) {
	clock := newFakeClock()
	errs := NewCounter(time.Minute)
	errs.now = clock.now
	succ := NewCounter(time.Minute)
	succ.now = clock.now

	for i := 0; i < 3; i++ {
		errs.Record()
	}
	succ.Record()

	gotErrs, gotTotal := ErrorRate(errs, succ, time.Minute)
	if gotErrs != 3 || gotTotal != 4 {
		t.Errorf("ErrorRate = (%d, %d), want (3, 4)", gotErrs, gotTotal)
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter(time.Minute)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Record()
				c.CountSince(time.Minute)
			}
		}()
	}
	wg.Wait()
	if got := c.CountSince(time.Minute); got != 400 {
		t.Errorf("CountSince after concurrent records = %d, want 400", got)
	}
}
