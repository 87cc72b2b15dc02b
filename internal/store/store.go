package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

// BucketStore owns the day → (show id → show) mapping. Reads never block
// writers: both map levels are lock-free concurrent maps. The only
// critical section is a per-show mutex guarding that show's airing set,
// because two airings for the same show can arrive concurrently from the
// same stream.
//
// A day bucket is created lazily by the first Merge for that day and
// deleted only by Remove (the rollback path). There is no expiry.
type BucketStore struct {
	days *xsync.MapOf[models.Day, *dayBucket]
}

type dayBucket struct {
	shows *xsync.MapOf[string, *showEntry]
}

// showEntry is the store-internal mutable form of a show. Snapshots hand
// out models.Show copies, never a reference to this.
type showEntry struct {
	id          string
	title       string
	description string

	mu      sync.Mutex
	airings map[string]models.Airing // keyed by airing id: set semantics
}

// New returns an empty BucketStore.
func New() *BucketStore {
	return &BucketStore{days: xsync.NewMapOf[models.Day, *dayBucket]()}
}

// Merge folds one airing into the bucket for day: the bucket and the show
// are created if absent, then the airing is added to the show's set.
// Idempotent per airing id, and safe under concurrent callers targeting
// the same day and/or the same show.
func (s *BucketStore) Merge(day models.Day, showID, title, description string, airing models.Airing) error {
	if showID == "" {
		return fmt.Errorf("merge into %s: airing %q has empty show id", day, airing.ID)
	}
	if airing.ID == "" {
		return fmt.Errorf("merge into %s: show %q has airing with empty id", day, showID)
	}

	bucket, _ := s.days.LoadOrCompute(day, func() *dayBucket {
		return &dayBucket{shows: xsync.NewMapOf[string, *showEntry]()}
	})
	entry, _ := bucket.shows.LoadOrCompute(showID, func() *showEntry {
		return &showEntry{
			id:          showID,
			title:       title,
			description: description,
			airings:     make(map[string]models.Airing),
		}
	})

	entry.mu.Lock()
	entry.airings[airing.ID] = airing
	entry.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the day's bucket, or false when the day is
// unknown. Airings are sorted by id so snapshots are deterministic.
func (s *BucketStore) Snapshot(day models.Day) (map[string]models.Show, bool) {
	bucket, ok := s.days.Load(day)
	if !ok {
		return nil, false
	}
	out := make(map[string]models.Show)
	bucket.shows.Range(func(id string, entry *showEntry) bool {
		entry.mu.Lock()
		airings := make([]models.Airing, 0, len(entry.airings))
		for _, a := range entry.airings {
			airings = append(airings, a)
		}
		entry.mu.Unlock()
		sort.Slice(airings, func(i, j int) bool { return airings[i].ID < airings[j].ID })
		out[id] = models.Show{
			ID:          entry.id,
			Title:       entry.title,
			Description: entry.description,
			Airings:     airings,
		}
		return true
	})
	return out, true
}

// Remove deletes a day's bucket unconditionally. Used only for rollback
// after a failed fetch; removing an absent day is a no-op.
func (s *BucketStore) Remove(day models.Day) {
	s.days.Delete(day)
}

// Days returns the number of cached day buckets. Exposed as a gauge.
func (s *BucketStore) Days() int {
	return s.days.Size()
}
