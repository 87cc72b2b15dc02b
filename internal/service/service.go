package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/abrennan/tv-schedule-service/internal/models"
	"github.com/abrennan/tv-schedule-service/internal/observability"
	"github.com/abrennan/tv-schedule-service/internal/provider"
	"github.com/abrennan/tv-schedule-service/internal/store"
)

// ScheduleService answers the two schedule queries by composing the day
// bucket store with on-demand provider fetches. A day is fetched at most
// until it succeeds; a failed fetch leaves no partial bucket behind.
type ScheduleService struct {
	client     provider.Client
	store      *store.BucketStore
	maxFetches int
	coalescer  *fetchCoalescer // nil when coalescing is disabled
	misses     *stampedeTracker
}

// NewScheduleService wires the orchestrator. maxConcurrentFetches bounds
// the per-day fan-out of range queries (minimum 1). Coalescing collapses
// concurrent fetches for the same missing day onto one upstream call; it
// is off by default because racing fetches are harmless (airings merge by
// id) and the extra wait is not always wanted.
func NewScheduleService(client provider.Client, st *store.BucketStore, maxConcurrentFetches int, coalesceEnabled bool, coalesceTimeout time.Duration) *ScheduleService {
	if maxConcurrentFetches < 1 {
		maxConcurrentFetches = 1
	}
	var coalescer *fetchCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newFetchCoalescer(coalesceTimeout)
	}
	return &ScheduleService{
		client:     client,
		store:      st,
		maxFetches: maxConcurrentFetches,
		coalescer:  coalescer,
		misses:     newStampedeTracker(),
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetRawData returns every show that aired on the given day. Cached days
// are served without touching the provider; unknown days are fetched,
// folded into the store record by record, and rolled back entirely if the
// stream fails. A day the provider has no data for is KindNotFound.
func (s *ScheduleService) GetRawData(ctx context.Context, day models.Day) ([]models.Show, error) {
	observability.ScheduleQueriesTotal.Inc()
	bucket, err := s.dayBucket(ctx, day)
	if err != nil {
		return nil, err
	}
	shows := make([]models.Show, 0, len(bucket))
	for _, show := range bucket {
		shows = append(shows, show)
	}
	sort.Slice(shows, func(i, j int) bool { return shows[i].ID < shows[j].ID })
	return shows, nil
}

// Sort orders accepted by GetOrderedByOccurrences.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// GetOrderedByOccurrences aggregates airing counts per show across every
// day from start to end inclusive and returns them ordered by count.
// end nil means the single day start. Validation fails before any I/O.
// Days missing from the cache are fetched concurrently, bounded by the
// configured fan-out; the first failing day fails the whole query while
// sibling days that already completed stay cached.
func (s *ScheduleService) GetOrderedByOccurrences(ctx context.Context, start models.Day, end *models.Day, order string, limit int) ([]models.Occurrence, error) {
	ord := strings.ToLower(strings.TrimSpace(order))
	if ord != OrderAsc && ord != OrderDesc {
		return nil, newError(KindInvalidArgument, "order must be %q or %q, got %q", OrderAsc, OrderDesc, order)
	}
	last := start
	if end != nil {
		last = *end
	}
	if start.After(last) {
		return nil, newError(KindInvalidArgument, "start date %s is after end date %s", start, last)
	}
	if limit <= 0 {
		return nil, newError(KindInvalidArgument, "limit must be positive, got %d", limit)
	}

	observability.ScheduleQueriesTotal.Inc()
	days := models.DaysBetween(start, last)

	p := pool.NewWithResults[map[string]models.Show]().
		WithContext(ctx).
		WithMaxGoroutines(s.maxFetches).
		WithCancelOnError().
		WithFirstError()
	for _, day := range days {
		day := day
		p.Go(func(ctx context.Context) (map[string]models.Show, error) {
			return s.dayBucket(ctx, day)
		})
	}
	buckets, err := p.Wait()
	if err != nil {
		return nil, err
	}
	return aggregateOccurrences(buckets, ord, limit), nil
}

// dayBucket returns the day's bucket, fetching and caching it on a miss.
func (s *ScheduleService) dayBucket(ctx context.Context, day models.Day) (map[string]models.Show, error) {
	logger := loggerFromContext(ctx)

	if snapshot, ok := s.store.Snapshot(day); ok {
		observability.CacheHitsTotal.Inc()
		if logger != nil {
			logger.Debug("serving day from cache", zap.Stringer("day", day), zap.Int("shows", len(snapshot)))
		}
		return snapshot, nil
	}
	observability.CacheMissesTotal.Inc()

	concurrent := s.misses.RecordMiss(day)
	defer s.misses.RecordDone(day)
	if concurrent > 1 {
		observability.DuplicateFetchesTotal.Inc()
	}

	if s.coalescer != nil {
		return s.coalescer.GetOrDo(ctx, day, func() (map[string]models.Show, error) {
			return s.fetchDay(ctx, day)
		})
	}
	return s.fetchDay(ctx, day)
}

// fetchDay pulls the day's stream and folds each record into the bucket
// derived from the record's own start time. Any failure removes the
// requested day's bucket before the error is returned, so callers never
// observe a half-written day.
func (s *ScheduleService) fetchDay(ctx context.Context, day models.Day) (map[string]models.Show, error) {
	logger := loggerFromContext(ctx)
	if logger != nil {
		logger.Debug("fetching day from provider", zap.Stringer("day", day))
	}

	stream, err := s.client.FetchDay(ctx, day)
	if err != nil {
		s.rollback(ctx, day)
		return nil, classifyProviderError(day, err)
	}
	defer func() { _ = stream.Close() }()

	merged := 0
	for stream.Next() {
		rec := stream.Record()
		bucketDay, err := models.DayFromTimestamp(rec.StartTime)
		if err != nil {
			s.rollback(ctx, day)
			return nil, wrapError(KindUpstreamProtocol, err, "airing %q: invalid start time", rec.ID)
		}
		airing := models.Airing{
			ID:        rec.ID,
			Season:    rec.Season,
			Episode:   rec.Episode,
			StartTime: rec.StartTime,
			EndTime:   rec.EndTime,
		}
		if err := s.store.Merge(bucketDay, rec.ShowID, rec.ShowTitle, rec.ShowDescription, airing); err != nil {
			s.rollback(ctx, day)
			return nil, wrapError(KindStore, err, "store airing %q", rec.ID)
		}
		merged++
	}
	if err := stream.Err(); err != nil {
		s.rollback(ctx, day)
		return nil, classifyProviderError(day, err)
	}
	if merged == 0 {
		// No bucket was created; Remove is issued anyway to keep the
		// error path uniform (no-op on an absent day).
		s.rollback(ctx, day)
		return nil, newError(KindNotFound, "no data found for the requested date: %s", day)
	}

	snapshot, ok := s.store.Snapshot(day)
	if !ok {
		// Every record landed in another day's bucket (start times
		// outside the requested day). The requested day itself is empty.
		return map[string]models.Show{}, nil
	}
	return snapshot, nil
}

// rollback discards the requested day's bucket after a failed fetch.
func (s *ScheduleService) rollback(ctx context.Context, day models.Day) {
	s.store.Remove(day)
	observability.BucketRollbacksTotal.Inc()
	if logger := loggerFromContext(ctx); logger != nil {
		logger.Warn("rolled back day bucket", zap.Stringer("day", day))
	}
}

// classifyProviderError maps provider sentinels onto the closed error kinds.
func classifyProviderError(day models.Day, err error) error {
	switch {
	case errors.Is(err, provider.ErrNoData):
		return wrapError(KindNotFound, err, "no data found for the requested date: %s", day)
	case errors.Is(err, provider.ErrMalformed):
		return wrapError(KindUpstreamProtocol, err, "provider response for %s unusable", day)
	case errors.Is(err, provider.ErrRejected):
		return wrapError(KindUpstreamUnavailable, err, "provider rejected request for %s", day)
	default:
		// ErrUnavailable, transport failures, and cancelled contexts.
		return wrapError(KindUpstreamUnavailable, err, "provider fetch for %s failed", day)
	}
}
