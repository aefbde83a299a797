// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
)

// staleRetries bounds how often a transition is re-read and re-applied
// after losing a conditional write.
const staleRetries = 3

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ListRepo     repository.ContactListRepositoryInterface
	ItemRepo     repository.ContactListItemRepositoryInterface
	Resolver     *AudienceResolver
	Notifier     EventNotifier
	Now          func() time.Time
}

type CampaignDetails struct {
	*model.Campaign
	Stats *model.AudienceStats `json:"stats,omitempty"`
}

type CampaignPage struct {
	Records []*model.Campaign `json:"records"`
	Count   int               `json:"count"`
	HasMore bool              `json:"hasMore"`
}

type ListFilter struct {
	TenantID    int
	Status      model.CampaignStatus
	IsRecurring *bool
	Search      string
	Page        int
	PageSize    int
}

// CampaignPatch holds the editable fields. Nil fields are left unchanged.
type CampaignPatch struct {
	Name            *string               `json:"name"`
	Message         *string               `json:"message"`
	ScheduledAt     *time.Time            `json:"scheduledAt"`
	IsRecurring     *bool                 `json:"isRecurring"`
	RecurrenceType  *model.RecurrenceType `json:"recurrenceType"`
	MaxExecutions   *int                  `json:"maxExecutions"`
	RecurrenceEndAt *time.Time            `json:"recurrenceEndAt"`
	ContactListID   *int                  `json:"contactListId"`
	TagID           *int                  `json:"tagListId"`
	WhatsappID      *int                  `json:"whatsappId"`
	Confirmation    *bool                 `json:"confirmation"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *CampaignService) publish(tenantID int, n Notification) {
	notifierOrNop(s.Notifier).Publish(tenantID, TopicCampaign, n)
}

// Create stores a new campaign in INACTIVE.
func (s *CampaignService) Create(ctx context.Context, c *model.Campaign) error {
	if c.IsRecurring && !c.RecurrenceType.Valid() {
		return appErrors.ErrInvalidRecurrence
	}
	if c.ContactListID != nil {
		if _, err := s.ListRepo.GetByID(ctx, c.TenantID, *c.ContactListID); err != nil {
			return err
		}
	}
	c.Status = model.StatusInactive
	c.ExecutionCount = 0
	c.CompletedAt = nil
	c.NextScheduledAt = nil
	if c.IsRecurring && c.ScheduledAt != nil {
		next := *c.ScheduledAt
		c.NextScheduledAt = &next
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return err
	}
	s.publish(c.TenantID, Notification{Action: "create", Record: c})
	return nil
}

// Get returns the campaign if it belongs to tenantID.
func (s *CampaignService) Get(ctx context.Context, tenantID, id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (s *CampaignService) GetWithStats(ctx context.Context, tenantID, id int) (*CampaignDetails, error) {
	c, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	details := &CampaignDetails{Campaign: c}
	if c.ContactListID != nil && s.ItemRepo != nil {
		stats, err := s.ItemRepo.Stats(ctx, tenantID, *c.ContactListID)
		if err != nil {
			return nil, err
		}
		details.Stats = &stats
	}
	return details, nil
}

// List fetches campaigns with pagination
func (s *CampaignService) List(ctx context.Context, f ListFilter) (*CampaignPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	offset := (f.Page - 1) * f.PageSize

	records, total, err := s.CampaignRepo.List(ctx, repository.CampaignFilter{
		TenantID:    f.TenantID,
		Status:      f.Status,
		IsRecurring: f.IsRecurring,
		Search:      f.Search,
		Offset:      offset,
		Limit:       f.PageSize,
	})
	if err != nil {
		return nil, err
	}
	return &CampaignPage{
		Records: records,
		Count:   total,
		HasMore: offset+len(records) < total,
	}, nil
}

// Update edits a campaign. A campaign that is dispatching cannot be edited.
func (s *CampaignService) Update(ctx context.Context, tenantID, id int, p CampaignPatch) (*model.Campaign, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusInProgress {
		return nil, appErrors.ErrCampaignInProgress
	}

	next := current.Clone()
	applyPatch(&next, p)
	if next.IsRecurring && !next.RecurrenceType.Valid() {
		return nil, appErrors.ErrInvalidRecurrence
	}
	if p.ContactListID != nil {
		if _, err := s.ListRepo.GetByID(ctx, tenantID, *p.ContactListID); err != nil {
			return nil, err
		}
	}

	// keep the next-run invariant for a campaign that is already scheduled
	if next.Status == model.StatusScheduled {
		if p.ScheduledAt != nil && !p.ScheduledAt.After(s.now()) {
			return nil, appErrors.ErrScheduleInPast
		}
		switch {
		case !next.IsRecurring:
			next.NextScheduledAt = nil
		case next.ScheduledAt != nil && (p.ScheduledAt != nil || next.NextScheduledAt == nil):
			planned := *next.ScheduledAt
			next.NextScheduledAt = &planned
		}
	}
	if !next.IsRecurring {
		next.NextScheduledAt = nil
	}

	if err := s.CampaignRepo.Update(ctx, &next, current.Status); err != nil {
		return nil, err
	}
	s.publish(tenantID, Notification{Action: "update", Record: &next})
	return &next, nil
}

func applyPatch(c *model.Campaign, p CampaignPatch) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Message != nil {
		c.Message = *p.Message
	}
	if p.ScheduledAt != nil {
		at := *p.ScheduledAt
		c.ScheduledAt = &at
	}
	if p.IsRecurring != nil {
		c.IsRecurring = *p.IsRecurring
	}
	if p.RecurrenceType != nil {
		c.RecurrenceType = *p.RecurrenceType
	}
	if p.MaxExecutions != nil {
		c.MaxExecutions = p.MaxExecutions
	}
	if p.RecurrenceEndAt != nil {
		c.RecurrenceEndAt = p.RecurrenceEndAt
	}
	if p.ContactListID != nil {
		c.ContactListID = p.ContactListID
	}
	if p.TagID != nil {
		c.TagID = p.TagID
	}
	if p.WhatsappID != nil {
		c.WhatsappID = p.WhatsappID
	}
	if p.Confirmation != nil {
		c.Confirmation = *p.Confirmation
	}
}

func (s *CampaignService) Delete(ctx context.Context, tenantID, id int) error {
	c, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status == model.StatusInProgress {
		return appErrors.ErrCampaignInProgress
	}
	if err := s.CampaignRepo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.publish(tenantID, Notification{Action: "delete", ID: id})
	return nil
}

// TransitionCampaign applies a lifecycle event. The write only lands if the
// stored status is still the one the transition was computed from; a lost
// race is retried against a fresh read.
func (s *CampaignService) TransitionCampaign(ctx context.Context, tenantID, id int, ev Event, opts TransitionOptions) (*model.Campaign, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		next, err := Transition(*current, ev, s.now(), opts)
		if err != nil {
			return nil, err
		}
		err = s.CampaignRepo.Update(ctx, &next, current.Status)
		if errors.Is(err, appErrors.ErrStaleCampaign) && attempt < staleRetries {
			continue
		}
		if err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"campaign_id": id,
			"tenant_id":   tenantID,
			"event":       ev,
			"from":        current.Status,
			"to":          next.Status,
		}).Info("[CAMPAIGN] Transition applied")
		s.publish(tenantID, Notification{Action: "update", Record: &next})
		return &next, nil
	}
}

func (s *CampaignService) StopRecurrence(ctx context.Context, tenantID, id int) (*model.Campaign, error) {
	return s.TransitionCampaign(ctx, tenantID, id, EventStopRecurrence, TransitionOptions{})
}

// BulkResolveAudience adds contacts to a list. It fails with
// ErrNoContactsFound only when none of the ids resolve to a contact of
// the tenant; per-item problems are reported in the result.
func (s *CampaignService) BulkResolveAudience(ctx context.Context, tenantID, listID int, contactIDs []int) (*ResolveResult, error) {
	if _, err := s.ListRepo.GetByID(ctx, tenantID, listID); err != nil {
		return nil, err
	}
	res, err := s.Resolver.Resolve(ctx, listID, tenantID, contactIDs)
	if err != nil {
		return nil, err
	}
	if res.Candidates == 0 {
		return nil, appErrors.ErrNoContactsFound
	}
	return res, nil
}
