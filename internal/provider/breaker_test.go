package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) FetchDay(ctx context.Context, day models.Day) (Stream, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &stubStream{}, nil
}

type stubStream struct{}

func (s *stubStream) Next() bool           { return false }
func (s *stubStream) Record() AiringRecord { return AiringRecord{} }
func (s *stubStream) Err() error           { return nil }
func (s *stubStream) Close() error         { return nil }

func breakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  4,
		FailureRatio: 0.5,
	}
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &stubClient{}
	b := NewBreakerClient(inner, breakerConfig())

	stream, err := b.FetchDay(context.Background(), models.NewDay(2024, time.October, 15))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	_ = stream.Close()
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestBreakerOpensOnRepeatedUnavailability(t *testing.T) {
	inner := &stubClient{err: ErrUnavailable}
	b := NewBreakerClient(inner, breakerConfig())
	day := models.NewDay(2024, time.October, 15)

	// Enough failures to cross MinRequests at a 100% failure ratio.
	for i := 0; i < 4; i++ {
		if _, err := b.FetchDay(context.Background(), day); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d error = %v, want ErrUnavailable", i, err)
		}
	}

	before := inner.calls
	_, err := b.FetchDay(context.Background(), day)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open breaker error = %v, want ErrUnavailable", err)
	}
	if inner.calls != before {
		t.Errorf("open breaker still reached inner client (%d calls)", inner.calls-before)
	}
}

func TestBreakerTreatsNoDataAsSuccess(t *testing.T) {
	inner := &stubClient{err: ErrNoData}
	b := NewBreakerClient(inner, breakerConfig())
	day := models.NewDay(2024, time.October, 15)

	// A provider answering "nothing scheduled" is not an outage; the
	// breaker must keep letting calls through.
	for i := 0; i < 10; i++ {
		if _, err := b.FetchDay(context.Background(), day); !errors.Is(err, ErrNoData) {
			t.Fatalf("call %d error = %v, want ErrNoData", i, err)
		}
	}
	if inner.calls != 10 {
		t.Errorf("inner calls = %d, want 10", inner.calls)
	}
}

func TestBreakerTreatsRejectionAsSuccess(t *testing.T) {
	inner := &stubClient{err: ErrRejected}
	b := NewBreakerClient(inner, breakerConfig())
	day := models.NewDay(2024, time.October, 15)

	for i := 0; i < 10; i++ {
		if _, err := b.FetchDay(context.Background(), day); !errors.Is(err, ErrRejected) {
			t.Fatalf("call %d error = %v, want ErrRejected", i, err)
		}
	}
	if inner.calls != 10 {
		t.Errorf("inner calls = %d, want 10", inner.calls)
	}
}
