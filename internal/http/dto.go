package http

import "github.com/abrennan/tv-schedule-service/internal/models"

// Wire-format objects for the shows API. Field names follow the public
// contract, not the internal model.

type tvShowAiringDTO struct {
	ID        string `json:"id"`
	Season    int64  `json:"season"`
	Episode   *int64 `json:"episode"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type tvShowDTO struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	TvShowAirings []tvShowAiringDTO `json:"tvShowAirings"`
}

type tvShowOccurrenceDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Occurrences int64  `json:"occurrences"`
}

func toShowDTOs(shows []models.Show) []tvShowDTO {
	out := make([]tvShowDTO, 0, len(shows))
	for _, show := range shows {
		airings := make([]tvShowAiringDTO, 0, len(show.Airings))
		for _, a := range show.Airings {
			airings = append(airings, tvShowAiringDTO{
				ID:        a.ID,
				Season:    a.Season,
				Episode:   a.Episode,
				StartTime: a.StartTime,
				EndTime:   a.EndTime,
			})
		}
		out = append(out, tvShowDTO{
			ID:            show.ID,
			Title:         show.Title,
			Description:   show.Description,
			TvShowAirings: airings,
		})
	}
	return out
}

func toOccurrenceDTOs(occurrences []models.Occurrence) []tvShowOccurrenceDTO {
	out := make([]tvShowOccurrenceDTO, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, tvShowOccurrenceDTO{
			ID:          occ.ID,
			Title:       occ.Title,
			Description: occ.Description,
			Occurrences: occ.Count,
		})
	}
	return out
}
