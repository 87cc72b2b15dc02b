// Package warming pre-populates the day cache for upcoming dates so that
// the first viewer request of the day does not pay the provider round trip.
package warming

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abrennan/tv-schedule-service/internal/models"
	"github.com/abrennan/tv-schedule-service/internal/observability"
	"github.com/abrennan/tv-schedule-service/internal/service"
)

// ScheduleFetcher is the slice of the schedule service the warmer needs.
type ScheduleFetcher interface {
	GetRawData(ctx context.Context, day models.Day) ([]models.Show, error)
}

// Warmer fetches schedules for a rolling window of upcoming days.
type Warmer struct {
	schedule  ScheduleFetcher
	logger    *zap.Logger
	daysAhead int
	now       func() time.Time
}

// NewWarmer returns a Warmer that keeps today plus daysAhead days cached.
func NewWarmer(schedule ScheduleFetcher, daysAhead int, logger *zap.Logger) *Warmer {
	return &Warmer{
		schedule:  schedule,
		logger:    logger,
		daysAhead: daysAhead,
		now:       time.Now,
	}
}

// Warm fetches the given days sequentially. Days the provider has no data
// for are skipped without counting as failures. Stops early if ctx is done.
func (w *Warmer) Warm(ctx context.Context, days []models.Day) {
	start := time.Now()
	warmed := 0
	for _, day := range days {
		if ctx.Err() != nil {
			return
		}
		observability.CacheWarmingTotal.Inc()
		if _, err := w.schedule.GetRawData(ctx, day); err != nil {
			if service.KindOf(err) == service.KindNotFound {
				w.logger.Debug("warming skipped, no schedule published",
					zap.String("day", day.String()))
				continue
			}
			observability.CacheWarmingErrorsTotal.Inc()
			w.logger.Warn("warming fetch failed",
				zap.String("day", day.String()),
				zap.Error(err))
			continue
		}
		warmed++
	}
	elapsed := time.Since(start)
	observability.CacheWarmingDurationSeconds.Observe(elapsed.Seconds())
	w.logger.Info("cache warming pass complete",
		zap.Int("days_requested", len(days)),
		zap.Int("days_warmed", warmed),
		zap.Duration("elapsed", elapsed))
}

// WarmPeriodic runs a warming pass immediately and then on every tick of
// interval, recomputing the upcoming window each time so the window rolls
// forward with the clock. Blocks until ctx is cancelled.
func (w *Warmer) WarmPeriodic(ctx context.Context, interval time.Duration) {
	w.Warm(ctx, w.upcoming())
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Warm(ctx, w.upcoming())
		}
	}
}

func (w *Warmer) upcoming() []models.Day {
	return UpcomingDays(models.DayOf(w.now()), w.daysAhead)
}

// UpcomingDays returns from plus the n days that follow it.
func UpcomingDays(from models.Day, n int) []models.Day {
	days := make([]models.Day, 0, n+1)
	day := from
	for i := 0; i <= n; i++ {
		days = append(days, day)
		day = day.Next()
	}
	return days
}
