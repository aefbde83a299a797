// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	StatusInactive   CampaignStatus = "INACTIVE"
	StatusScheduled  CampaignStatus = "SCHEDULED"
	StatusInProgress CampaignStatus = "IN_PROGRESS"
	StatusCanceled   CampaignStatus = "CANCELED"
	StatusFinished   CampaignStatus = "FINISHED"
)

// IsTerminal reports whether no further transition can leave the status.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusFinished
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusScheduled, StatusInProgress, StatusCanceled, StatusFinished:
		return true
	}
	return false
}

type RecurrenceType string

const (
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
	RecurrenceYearly   RecurrenceType = "yearly"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	}
	return false
}

type Campaign struct {
	ID                int            `db:"id" json:"id"`
	TenantID          int            `db:"tenant_id" json:"tenantId"`
	Name              string         `db:"name" json:"name"`
	Message           string         `db:"message" json:"message"`
	Status            CampaignStatus `db:"status" json:"status"`
	IsRecurring       bool           `db:"is_recurring" json:"isRecurring"`
	RecurrenceType    RecurrenceType `db:"recurrence_type" json:"recurrenceType,omitempty"`
	ScheduledAt       *time.Time     `db:"scheduled_at" json:"scheduledAt,omitempty"`
	NextScheduledAt   *time.Time     `db:"next_scheduled_at" json:"nextScheduledAt,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	ExecutionCount    int            `db:"execution_count" json:"executionCount"`
	MaxExecutions     *int           `db:"max_executions" json:"maxExecutions,omitempty"`
	RecurrenceEndAt   *time.Time     `db:"recurrence_end_at" json:"recurrenceEndAt,omitempty"`
	RecurrenceStopped bool           `db:"recurrence_stopped" json:"recurrenceStopped"`
	ContactListID     *int           `db:"contact_list_id" json:"contactListId,omitempty"`
	TagID             *int           `db:"tag_id" json:"tagListId,omitempty"`
	WhatsappID        *int           `db:"whatsapp_id" json:"whatsappId,omitempty"`
	Confirmation      bool           `db:"confirmation" json:"confirmation"`
	LastDispatchError string         `db:"last_dispatch_error" json:"lastDispatchError,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         *time.Time     `db:"updated_at" json:"updatedAt,omitempty"`
	// Version is bumped by every stored write.
	Version int `db:"version" json:"version"`
}

// PlannedAt is the time the next execution is due: NextScheduledAt for an
// active recurrence, ScheduledAt otherwise.
func (c *Campaign) PlannedAt() *time.Time {
	if c.NextScheduledAt != nil {
		return c.NextScheduledAt
	}
	return c.ScheduledAt
}

// Clone returns a deep copy so a snapshot can be changed without aliasing
// the original's pointer fields.
func (c Campaign) Clone() Campaign {
	out := c
	out.ScheduledAt = cloneTime(c.ScheduledAt)
	out.NextScheduledAt = cloneTime(c.NextScheduledAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	out.RecurrenceEndAt = cloneTime(c.RecurrenceEndAt)
	out.UpdatedAt = cloneTime(c.UpdatedAt)
	out.MaxExecutions = cloneInt(c.MaxExecutions)
	out.ContactListID = cloneInt(c.ContactListID)
	out.TagID = cloneInt(c.TagID)
	out.WhatsappID = cloneInt(c.WhatsappID)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
