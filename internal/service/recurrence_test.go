package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/service"
)

func TestNextOccurrence(t *testing.T) {
	cases := []struct {
		name   string
		prev   string
		rt     model.RecurrenceType
		anchor int
		want   string
	}{
		{"daily", "2024-01-01T10:00:00Z", model.RecurrenceDaily, 0, "2024-01-02T10:00:00Z"},
		{"weekly", "2024-01-01T10:00:00Z", model.RecurrenceWeekly, 0, "2024-01-08T10:00:00Z"},
		{"biweekly", "2024-01-01T10:00:00Z", model.RecurrenceBiweekly, 0, "2024-01-15T10:00:00Z"},
		{"monthly leap year", "2024-01-31T10:00:00Z", model.RecurrenceMonthly, 31, "2024-02-29T10:00:00Z"},
		{"monthly common year", "2023-01-31T10:00:00Z", model.RecurrenceMonthly, 31, "2023-02-28T10:00:00Z"},
		{"monthly into 30 days", "2024-03-31T10:00:00Z", model.RecurrenceMonthly, 31, "2024-04-30T10:00:00Z"},
		{"monthly recovers anchor", "2024-02-29T10:00:00Z", model.RecurrenceMonthly, 31, "2024-03-31T10:00:00Z"},
		{"monthly over year end", "2024-12-15T10:00:00Z", model.RecurrenceMonthly, 15, "2025-01-15T10:00:00Z"},
		{"yearly from leap day", "2024-02-29T10:00:00Z", model.RecurrenceYearly, 29, "2025-02-28T10:00:00Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := service.NextOccurrence(*at(tc.prev), tc.rt, tc.anchor)
			require.NoError(t, err)
			assert.Equal(t, *at(tc.want), got)
		})
	}
}

func TestNextOccurrenceKeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	prev := time.Date(2024, 5, 10, 9, 30, 0, 0, loc)
	got, err := service.NextOccurrence(prev, model.RecurrenceMonthly, 10)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 30, 0, 0, loc), got)
}

func TestNextOccurrenceUnknownType(t *testing.T) {
	_, err := service.NextOccurrence(now, "hourly", 0)
	assert.Error(t, err)
}
