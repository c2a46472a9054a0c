package main

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotYetAvailable indicates the requested day or part is still locked.
var ErrNotYetAvailable = errors.New("not yet available")

// Event calendar constants.
const (
	firstEventYear = 2015
	eventMonth     = time.December
)

// unlockZone is the reference timezone of the daily release. Days unlock at local
// midnight in this zone, so the zone-local date is the latest unlocked day.
var unlockZone = time.FixedZone("UTC-5", -5*60*60)

// clock abstracts wall-clock time so calendar logic can be pinned in tests.
type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// notAvailableError carries the coordinates of locked content.
type notAvailableError struct {
	Year int
	Day  int
	Part int
}

func (e *notAvailableError) Error() string {
	switch {
	case e.Part > 0:
		return fmt.Sprintf("%d day %d part %d: %s", e.Year, e.Day, e.Part, ErrNotYetAvailable)
	case e.Day > 0:
		return fmt.Sprintf("%d day %d: %s", e.Year, e.Day, ErrNotYetAvailable)
	default:
		return fmt.Sprintf("%d: %s", e.Year, ErrNotYetAvailable)
	}
}

func (e *notAvailableError) Unwrap() error { return ErrNotYetAvailable }

// eventDays returns the number of puzzle days in a year's event.
func eventDays(year int) int {
	if year >= 2025 {
		return 12
	}
	return 25
}

// mostRecentYear returns the latest event that has started at now.
func mostRecentYear(now time.Time) int {
	now = now.In(unlockZone)
	if now.Month() == eventMonth {
		return now.Year()
	}
	return now.Year() - 1
}

// mostRecentDay returns the latest unlocked day of year's event at now.
func mostRecentDay(now time.Time, year int) (int, error) {
	if year < firstEventYear {
		return 0, fmt.Errorf("invalid year %d: events start in %d", year, firstEventYear)
	}
	now = now.In(unlockZone)
	last := eventDays(year)

	switch {
	case year < now.Year():
		return last, nil
	case year == now.Year() && now.Month() == eventMonth:
		return min(now.Day(), last), nil
	default:
		return 0, &notAvailableError{Year: year}
	}
}

// checkUnlocked fails with ErrNotYetAvailable when day has not been released.
func checkUnlocked(now time.Time, year, day int) error {
	if day < 1 || day > eventDays(year) {
		return fmt.Errorf("invalid day %d: %d has days 1-%d", day, year, eventDays(year))
	}
	latest, err := mostRecentDay(now, year)
	if err != nil {
		return err
	}
	if day > latest {
		return &notAvailableError{Year: year, Day: day}
	}
	return nil
}
