// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrNoContactsFound    = errors.New("no contacts found with provided IDs")
	ErrCampaignInProgress = errors.New("campaign is in progress and cannot be modified")
	ErrStaleCampaign      = errors.New("campaign was modified concurrently")
	ErrLockNotAcquired    = errors.New("lock is held by another process")
	ErrScheduleInPast     = errors.New("scheduledAt must be in the future")
	ErrInvalidRecurrence  = errors.New("recurring campaign needs a valid recurrence type")
	ErrEmptyAudience      = errors.New("campaign audience is empty")
	ErrDuplicateListItem  = errors.New("canonical address already present in list")
)

// NotFoundError covers any entity that is absent or outside the caller's tenant.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func NewCampaignNotFound(id int) error {
	return &NotFoundError{Entity: "campaign", ID: id}
}

func NewContactListNotFound(id int) error {
	return &NotFoundError{Entity: "contact list", ID: id}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidTransitionError names the state a campaign was in and the event
// that was refused.
type InvalidTransitionError struct {
	CampaignID int
	From       string
	Event      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("campaign %d: cannot %s from status %s", e.CampaignID, e.Event, e.From)
}

func NewInvalidTransition(campaignID int, from, event string) error {
	return &InvalidTransitionError{CampaignID: campaignID, From: from, Event: event}
}

func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// ValidationUnavailableError means the number validator could not give an
// answer. It is never fatal to a batch.
type ValidationUnavailableError struct {
	Number string
	Err    error
}

func (e *ValidationUnavailableError) Error() string {
	return fmt.Sprintf("could not validate number %s: %v", e.Number, e.Err)
}

func (e *ValidationUnavailableError) Unwrap() error {
	return e.Err
}

func NewValidationUnavailable(number string, err error) error {
	return &ValidationUnavailableError{Number: number, Err: err}
}

func IsValidationUnavailable(err error) bool {
	var vu *ValidationUnavailableError
	return errors.As(err, &vu)
}

type DispatchFailedError struct {
	CampaignID int
	Reason     string
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("dispatch of campaign %d failed: %s", e.CampaignID, e.Reason)
}

func NewDispatchFailed(campaignID int, reason string) error {
	return &DispatchFailedError{CampaignID: campaignID, Reason: reason}
}
