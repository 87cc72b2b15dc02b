package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/abrennan/tv-schedule-service/internal/models"
	"github.com/abrennan/tv-schedule-service/internal/observability"
)

const breakerName = "epg_provider"

// BreakerConfig tunes the circuit breaker around provider fetches.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets failure counts while closed.
	Interval time.Duration
	// Timeout before an open breaker transitions to half-open.
	Timeout time.Duration
	// MinRequests before the failure ratio is evaluated.
	MinRequests uint32
	// FailureRatio at or above which the breaker opens.
	FailureRatio float64
}

// BreakerClient wraps a Client with a circuit breaker so a flapping or
// down provider stops consuming request budget. Only the fetch call itself
// (connect, status classification) is guarded; mid-stream decode errors
// surface after FetchDay returns and do not count against the breaker.
//
// A day with no data (ErrNoData) and an unexpected 4xx (ErrRejected) are
// provider answers, not outages, and count as successes.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[Stream]
}

// NewBreakerClient wraps inner with a breaker built from cfg.
func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	observability.SetCircuitBreakerState(breakerName, float64(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[Stream](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String())
			observability.SetCircuitBreakerState(name, float64(to))
		},
	})
	return &BreakerClient{inner: inner, cb: cb}
}

// FetchDay implements Client. An open breaker is reported as provider
// unavailability so callers classify it like any other outage.
func (b *BreakerClient) FetchDay(ctx context.Context, day models.Day) (Stream, error) {
	stream, err := b.cb.Execute(func() (Stream, error) {
		return b.inner.FetchDay(ctx, day)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker %s", ErrUnavailable, err)
		}
		return nil, err
	}
	return stream, nil
}
