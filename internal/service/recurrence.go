package service

import (
	"fmt"
	"time"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// NextOccurrence returns the run after prev. Monthly and yearly cadences
// land on anchorDay, clamped to the length of the target month, so an
// anchor of 31 goes Jan 31, Feb 29, Mar 31. anchorDay <= 0 means prev's day.
func NextOccurrence(prev time.Time, rt model.RecurrenceType, anchorDay int) (time.Time, error) {
	if anchorDay <= 0 {
		anchorDay = prev.Day()
	}
	switch rt {
	case model.RecurrenceDaily:
		return prev.AddDate(0, 0, 1), nil
	case model.RecurrenceWeekly:
		return prev.AddDate(0, 0, 7), nil
	case model.RecurrenceBiweekly:
		return prev.AddDate(0, 0, 14), nil
	case model.RecurrenceMonthly:
		return onDay(prev.Year(), prev.Month()+1, anchorDay, prev), nil
	case model.RecurrenceYearly:
		return onDay(prev.Year()+1, prev.Month(), anchorDay, prev), nil
	}
	return time.Time{}, fmt.Errorf("unknown recurrence type %q", rt)
}

// onDay builds year/month/day at clock's time of day. month may be 13.
func onDay(year int, month time.Month, day int, clock time.Time) time.Time {
	first := time.Date(year, month, 1, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
	if last := daysIn(first.Year(), first.Month(), clock.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func anchorDay(c *model.Campaign) int {
	if c.ScheduledAt != nil {
		return c.ScheduledAt.Day()
	}
	return 0
}

// exhausted reports whether a recurrence must end instead of running at next.
func exhausted(c *model.Campaign, next time.Time) bool {
	if c.RecurrenceStopped {
		return true
	}
	if c.MaxExecutions != nil && c.ExecutionCount >= *c.MaxExecutions {
		return true
	}
	return c.RecurrenceEndAt != nil && next.After(*c.RecurrenceEndAt)
}
