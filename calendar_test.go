package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMostRecentYear(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"october", time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC), 2025},
		{"december", time.Date(2026, time.December, 3, 12, 0, 0, 0, time.UTC), 2026},
		{"january", time.Date(2027, time.January, 1, 12, 0, 0, 0, time.UTC), 2026},
		{"december first before release", time.Date(2026, time.December, 1, 2, 0, 0, 0, time.UTC), 2025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mostRecentYear(tt.now))
		})
	}
}

func TestMostRecentDay(t *testing.T) {
	day, err := mostRecentDay(afterEvent, 2024)
	require.NoError(t, err)
	assert.Equal(t, 25, day)

	day, err = mostRecentDay(afterEvent, 2025)
	require.NoError(t, err)
	assert.Equal(t, 12, day)

	_, err = mostRecentDay(afterEvent, afterEvent.Year()+1)
	assert.ErrorIs(t, err, ErrNotYetAvailable)

	_, err = mostRecentDay(afterEvent, afterEvent.Year())
	assert.ErrorIs(t, err, ErrNotYetAvailable, "event has not started in October")

	_, err = mostRecentDay(afterEvent, 2014)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotYetAvailable))
}

func TestMostRecentDay_ReleaseBoundary(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before midnight UTC-5", time.Date(2026, time.December, 5, 4, 59, 59, 0, time.UTC), 4},
		{"at midnight UTC-5", time.Date(2026, time.December, 5, 5, 0, 0, 0, time.UTC), 5},
		{"capped at event length", time.Date(2026, time.December, 30, 12, 0, 0, 0, time.UTC), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mostRecentDay(tt.now, 2026)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := mostRecentDay(time.Date(2026, time.December, 1, 4, 0, 0, 0, time.UTC), 2026)
	assert.ErrorIs(t, err, ErrNotYetAvailable)
}

func TestCheckUnlocked(t *testing.T) {
	now := time.Date(2026, time.December, 5, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, checkUnlocked(now, 2026, 5))
	assert.NoError(t, checkUnlocked(now, 2020, 25))

	err := checkUnlocked(now, 2026, 6)
	require.ErrorIs(t, err, ErrNotYetAvailable)
	var na *notAvailableError
	require.ErrorAs(t, err, &na)
	assert.Equal(t, 6, na.Day)

	assert.Error(t, checkUnlocked(now, 2025, 13), "2025 has only 12 days")
	assert.Error(t, checkUnlocked(now, 2024, 0))
}
