package service

import (
	"sort"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

// aggregateOccurrences flattens per-day buckets into one occurrence per
// distinct show id, summing each show's airing count across days. The
// first instance seen supplies the identity fields. Output is sorted by
// count in the requested order; equal counts fall back to show id
// ascending so results are deterministic. At most limit entries return.
func aggregateOccurrences(buckets []map[string]models.Show, order string, limit int) []models.Occurrence {
	combined := make(map[string]models.Occurrence)
	for _, bucket := range buckets {
		for id, show := range bucket {
			occ, ok := combined[id]
			if !ok {
				occ = models.Occurrence{ID: show.ID, Title: show.Title, Description: show.Description}
			}
			occ.Count += int64(len(show.Airings))
			combined[id] = occ
		}
	}

	out := make([]models.Occurrence, 0, len(combined))
	for _, occ := range combined {
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			if order == OrderAsc {
				return out[i].Count < out[j].Count
			}
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
