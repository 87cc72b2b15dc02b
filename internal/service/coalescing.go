package service

import (
	"context"
	"sync"
	"time"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

// dayData is the value produced by one day fetch.
type dayData = map[string]models.Show

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  dayData
	err     error
	done    bool
	waiters []chan struct{}
}

// fetchCoalescer collapses concurrent fetches for the same missing day
// onto one upstream call. Optional: the orchestrator tolerates racing
// fetches, so this only saves provider budget.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[models.Day]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	return &fetchCoalescer{
		inFlight: make(map[models.Day]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo waits for an in-flight fetch for day if one exists, otherwise
// runs fn and shares its outcome with every waiter. Respects context
// cancellation and the coalescer timeout.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, day models.Day, fn func() (dayData, error)) (dayData, error) {
	fc.mu.Lock()
	req, exists := fc.inFlight[day]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			fc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		fc.mu.Unlock()
		return fc.await(ctx, req, notify)
	}

	req = &inFlightFetch{}
	fc.inFlight[day] = req
	fc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		fc.mu.Lock()
		delete(fc.inFlight, day)
		fc.mu.Unlock()
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()
	return fc.await(ctx, req, notify)
}

// await blocks until the in-flight fetch completes, the context is
// cancelled, or the coalescer timeout elapses.
func (fc *fetchCoalescer) await(ctx context.Context, req *inFlightFetch, notify chan struct{}) (dayData, error) {
	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}
