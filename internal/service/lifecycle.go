package service

import (
	"time"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

type Event string

const (
	EventSchedule       Event = "schedule"
	EventStart          Event = "start"
	EventComplete       Event = "complete"
	EventCancel         Event = "cancel"
	EventRestart        Event = "restart"
	EventStopRecurrence Event = "stop-recurrence"
)

func (e Event) Valid() bool {
	switch e {
	case EventSchedule, EventStart, EventComplete, EventCancel, EventRestart, EventStopRecurrence:
		return true
	}
	return false
}

// TransitionOptions carries the inputs some events need.
type TransitionOptions struct {
	// ScheduledAt overrides the planned time for schedule and restart.
	ScheduledAt *time.Time
	// AudienceSize guards start.
	AudienceSize int
	// DispatchErr is the failure reported with complete, empty on success.
	DispatchErr string
}

// Transition applies ev to a snapshot of c and returns the new snapshot.
// c itself is never modified. Events outside the lifecycle matrix fail with
// an InvalidTransitionError naming the current status.
func Transition(c model.Campaign, ev Event, now time.Time, opts TransitionOptions) (model.Campaign, error) {
	out := c.Clone()
	refuse := func() (model.Campaign, error) {
		return c, appErrors.NewInvalidTransition(c.ID, string(c.Status), string(ev))
	}

	switch ev {
	case EventSchedule:
		if c.Status != model.StatusInactive {
			return refuse()
		}
		at := c.ScheduledAt
		if opts.ScheduledAt != nil {
			at = opts.ScheduledAt
		}
		if at == nil || !at.After(now) {
			return c, appErrors.ErrScheduleInPast
		}
		if c.IsRecurring && !c.RecurrenceType.Valid() {
			return c, appErrors.ErrInvalidRecurrence
		}
		planned := *at
		out.ScheduledAt = &planned
		if c.IsRecurring {
			next := planned
			out.NextScheduledAt = &next
		}
		out.Status = model.StatusScheduled

	case EventStart:
		if c.Status != model.StatusScheduled {
			return refuse()
		}
		if opts.AudienceSize <= 0 {
			return c, appErrors.ErrEmptyAudience
		}
		out.Status = model.StatusInProgress
		out.CompletedAt = nil

	case EventComplete:
		if c.Status != model.StatusInProgress {
			return refuse()
		}
		completed := now
		out.CompletedAt = &completed
		out.ExecutionCount++
		out.LastDispatchError = opts.DispatchErr

		if !c.IsRecurring {
			out.Status = model.StatusFinished
			out.NextScheduledAt = nil
			break
		}
		next, err := nextAfter(&out)
		if err != nil {
			return c, err
		}
		if exhausted(&out, next) {
			out.Status = model.StatusFinished
			out.NextScheduledAt = nil
			break
		}
		out.NextScheduledAt = &next
		out.Status = model.StatusScheduled

	case EventCancel:
		if c.Status != model.StatusScheduled && c.Status != model.StatusInProgress {
			return refuse()
		}
		out.Status = model.StatusCanceled

	case EventRestart:
		if c.Status != model.StatusCanceled {
			return refuse()
		}
		planned := now
		if opts.ScheduledAt != nil && opts.ScheduledAt.After(now) {
			planned = *opts.ScheduledAt
		}
		// a restarted recurrence is re-anchored on the restart time
		out.ScheduledAt = &planned
		if c.IsRecurring {
			next := planned
			out.NextScheduledAt = &next
			out.RecurrenceStopped = false
		}
		out.Status = model.StatusScheduled

	case EventStopRecurrence:
		if !c.IsRecurring {
			return refuse()
		}
		switch c.Status {
		case model.StatusScheduled:
			out.Status = model.StatusFinished
			out.NextScheduledAt = nil
		case model.StatusInProgress:
			// the running execution finishes first; complete then ends it
		default:
			return refuse()
		}
		out.RecurrenceStopped = true

	default:
		return refuse()
	}
	return out, nil
}

// nextAfter computes the run after the one that just executed, anchored on
// the previous planned time rather than the clock.
func nextAfter(c *model.Campaign) (time.Time, error) {
	prev := c.PlannedAt()
	if prev == nil {
		return time.Time{}, appErrors.ErrInvalidRecurrence
	}
	return NextOccurrence(*prev, c.RecurrenceType, anchorDay(c))
}
