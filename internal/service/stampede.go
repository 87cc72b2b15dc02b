package service

import (
	"sync"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

// stampedeTracker counts concurrent cache misses per day. When two callers
// miss the same day at once, the count exceeds 1 and the duplicate-fetch
// metric fires; the fetches themselves are allowed to race.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[models.Day]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[models.Day]int)}
}

// RecordMiss registers a miss for day and returns the concurrent miss
// count after incrementing. Pair with a deferred RecordDone.
func (st *stampedeTracker) RecordMiss(day models.Day) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[day]++
	return st.activeMisses[day]
}

// RecordDone marks one miss for day as resolved.
func (st *stampedeTracker) RecordDone(day models.Day) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[day]; ok && count > 0 {
		st.activeMisses[day]--
		if st.activeMisses[day] == 0 {
			delete(st.activeMisses, day)
		}
	}
}
