// Package validation checks query parameters at the HTTP boundary before
// they reach the schedule service.
package validation

import (
	"errors"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

// ErrDateEmpty is returned when the date parameter is missing or blank.
var ErrDateEmpty = errors.New("date is required")

// ErrDateFormat is returned when the date is not a valid yyyy-MM-dd date.
var ErrDateFormat = errors.New("date must be in yyyy-MM-dd format")

// ValidateDate parses a yyyy-MM-dd query parameter into a calendar day.
// Returns an error suitable for 400 INVALID_DATE responses.
func ValidateDate(input string) (models.Day, error) {
	if input == "" {
		return models.Day{}, ErrDateEmpty
	}
	day, err := models.ParseDay(input)
	if err != nil {
		return models.Day{}, ErrDateFormat
	}
	return day, nil
}
