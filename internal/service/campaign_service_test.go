package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/service"
)

func newCampaignService(repo *MockCampaignRepo) (*service.CampaignService, *MockNotifier) {
	notifier := &MockNotifier{}
	resolver, items, _, _ := resolverFixture()
	resolver.Notifier = notifier
	return &service.CampaignService{
		CampaignRepo: repo,
		ListRepo:     newListRepo(model.ContactList{ID: 10, TenantID: tenant, Name: "VIP"}),
		ItemRepo:     items,
		Resolver:     resolver,
		Notifier:     notifier,
		Now:          func() time.Time { return now },
	}, notifier
}

func TestCreateStartsInactive(t *testing.T) {
	svc, notifier := newCampaignService(newCampaignRepo())

	c := &model.Campaign{
		TenantID:       tenant,
		Name:           "Promo",
		Status:         model.StatusScheduled,
		IsRecurring:    true,
		RecurrenceType: model.RecurrenceWeekly,
		ScheduledAt:    at("2024-01-02T10:00:00Z"),
		ContactListID:  intPtr(10),
		ExecutionCount: 5,
	}
	require.NoError(t, svc.Create(context.Background(), c))

	assert.NotZero(t, c.ID)
	assert.Equal(t, model.StatusInactive, c.Status)
	assert.Zero(t, c.ExecutionCount)
	require.NotNil(t, c.NextScheduledAt)
	assert.Equal(t, *c.ScheduledAt, *c.NextScheduledAt)
	assert.Equal(t, []string{service.TopicCampaign}, notifier.topics())
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _ := newCampaignService(newCampaignRepo())

	err := svc.Create(context.Background(), &model.Campaign{TenantID: tenant, IsRecurring: true, RecurrenceType: "hourly"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidRecurrence)

	err = svc.Create(context.Background(), &model.Campaign{TenantID: tenant, ContactListID: intPtr(999)})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestGetHidesOtherTenants(t *testing.T) {
	svc, _ := newCampaignService(newCampaignRepo(model.Campaign{ID: 1, TenantID: 2, Status: model.StatusInactive}))

	_, err := svc.Get(context.Background(), tenant, 1)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestListPaginates(t *testing.T) {
	var cs []model.Campaign
	for i := 1; i <= 25; i++ {
		cs = append(cs, model.Campaign{ID: i, TenantID: tenant, Name: fmt.Sprintf("Campaign %d", i), Status: model.StatusInactive})
	}
	cs = append(cs, model.Campaign{ID: 26, TenantID: 2, Name: "Other", Status: model.StatusInactive})
	svc, _ := newCampaignService(newCampaignRepo(cs...))

	page, err := svc.List(context.Background(), service.ListFilter{TenantID: tenant, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Records, 10)
	assert.Equal(t, 25, page.Count)
	assert.True(t, page.HasMore)
	assert.Equal(t, 25, page.Records[0].ID)

	page, err = svc.List(context.Background(), service.ListFilter{TenantID: tenant, Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, page.Records, 5)
	assert.False(t, page.HasMore)

	page, err = svc.List(context.Background(), service.ListFilter{TenantID: tenant, Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, page.Records, 25)
	assert.False(t, page.HasMore)
}

func TestUpdateRefusesInProgress(t *testing.T) {
	svc, _ := newCampaignService(newCampaignRepo(model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusInProgress}))

	_, err := svc.Update(context.Background(), tenant, 1, service.CampaignPatch{Name: strPtr("renamed")})
	assert.ErrorIs(t, err, appErrors.ErrCampaignInProgress)
}

func TestUpdateScheduledMovesNextRun(t *testing.T) {
	repo := newCampaignRepo(recurring(model.StatusScheduled, model.RecurrenceDaily, "2024-01-02T10:00:00Z"))
	svc, notifier := newCampaignService(repo)

	_, err := svc.Update(context.Background(), tenant, 1, service.CampaignPatch{ScheduledAt: at("2023-12-01T00:00:00Z")})
	assert.ErrorIs(t, err, appErrors.ErrScheduleInPast)

	out, err := svc.Update(context.Background(), tenant, 1, service.CampaignPatch{ScheduledAt: at("2024-01-05T08:00:00Z")})
	require.NoError(t, err)
	assert.Equal(t, *at("2024-01-05T08:00:00Z"), *out.NextScheduledAt)
	assert.Equal(t, *at("2024-01-05T08:00:00Z"), *repo.get(1).NextScheduledAt)

	out, err = svc.Update(context.Background(), tenant, 1, service.CampaignPatch{IsRecurring: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, out.NextScheduledAt)
	assert.Len(t, notifier.topics(), 2)
}

func TestDelete(t *testing.T) {
	repo := newCampaignRepo(
		model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusFinished},
		model.Campaign{ID: 2, TenantID: tenant, Status: model.StatusInProgress},
	)
	svc, notifier := newCampaignService(repo)

	require.NoError(t, svc.Delete(context.Background(), tenant, 1))
	_, err := repo.GetByID(context.Background(), 1)
	assert.True(t, appErrors.IsNotFound(err))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, service.Notification{Action: "delete", ID: 1}, notifier.events[0].Payload)

	assert.ErrorIs(t, svc.Delete(context.Background(), tenant, 2), appErrors.ErrCampaignInProgress)
	assert.True(t, appErrors.IsNotFound(svc.Delete(context.Background(), 2, 1)))
}

func TestTransitionCampaignPublishesUpdate(t *testing.T) {
	repo := newCampaignRepo(model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusInactive})
	svc, notifier := newCampaignService(repo)

	out, err := svc.TransitionCampaign(context.Background(), tenant, 1, service.EventSchedule,
		service.TransitionOptions{ScheduledAt: at("2024-01-03T09:00:00Z")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, out.Status)
	assert.Equal(t, model.StatusScheduled, repo.get(1).Status)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, tenant, notifier.events[0].TenantID)

	_, err = svc.TransitionCampaign(context.Background(), tenant, 1, service.EventRestart, service.TransitionOptions{})
	assert.True(t, appErrors.IsInvalidTransition(err))
	assert.Len(t, notifier.events, 1, "refused transitions publish nothing")
}

func TestTransitionCampaignRetriesLostRace(t *testing.T) {
	repo := newCampaignRepo(model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusScheduled, ScheduledAt: at("2024-01-02T10:00:00Z")})
	svc, _ := newCampaignService(repo)

	// the scheduler starts the campaign between our read and our write
	raced := false
	repo.beforeUpdate = func(c *model.Campaign) {
		if raced {
			return
		}
		raced = true
		repo.mu.Lock()
		repo.campaigns[1].Status = model.StatusInProgress
		repo.mu.Unlock()
	}

	out, err := svc.TransitionCampaign(context.Background(), tenant, 1, service.EventCancel, service.TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, out.Status)
	assert.Equal(t, model.StatusCanceled, repo.get(1).Status)
}

func TestTransitionCampaignGivesUpAfterRepeatedRaces(t *testing.T) {
	repo := newCampaignRepo(model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusScheduled})
	svc, _ := newCampaignService(repo)

	// flip back and forth so every attempt loses
	repo.beforeUpdate = func(c *model.Campaign) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		if repo.campaigns[1].Status == model.StatusScheduled {
			repo.campaigns[1].Status = model.StatusInProgress
		} else {
			repo.campaigns[1].Status = model.StatusScheduled
		}
	}

	_, err := svc.TransitionCampaign(context.Background(), tenant, 1, service.EventCancel, service.TransitionOptions{})
	assert.ErrorIs(t, err, appErrors.ErrStaleCampaign)
}

func TestStopRecurrenceWhileInProgress(t *testing.T) {
	repo := newCampaignRepo(recurring(model.StatusInProgress, model.RecurrenceDaily, "2024-01-01T10:00:00Z"))
	svc, _ := newCampaignService(repo)

	out, err := svc.StopRecurrence(context.Background(), tenant, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, out.Status)
	assert.True(t, repo.get(1).RecurrenceStopped)
}

func TestBulkResolveAudience(t *testing.T) {
	svc, _ := newCampaignService(newCampaignRepo())

	_, err := svc.BulkResolveAudience(context.Background(), tenant, 999, []int{1})
	assert.True(t, appErrors.IsNotFound(err))

	_, err = svc.BulkResolveAudience(context.Background(), tenant, 10, []int{4, 99})
	assert.ErrorIs(t, err, appErrors.ErrNoContactsFound)

	res, err := svc.BulkResolveAudience(context.Background(), tenant, 10, []int{1, 5})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Len(t, res.Created, 2)
}

func TestGetWithStats(t *testing.T) {
	repo := newCampaignRepo(
		model.Campaign{ID: 1, TenantID: tenant, Status: model.StatusInactive, ContactListID: intPtr(10)},
		model.Campaign{ID: 2, TenantID: tenant, Status: model.StatusInactive},
	)
	svc, _ := newCampaignService(repo)
	_, err := svc.BulkResolveAudience(context.Background(), tenant, 10, []int{1, 2, 5})
	require.NoError(t, err)

	details, err := svc.GetWithStats(context.Background(), tenant, 1)
	require.NoError(t, err)
	require.NotNil(t, details.Stats)
	assert.Equal(t, model.AudienceStats{Total: 3, Valid: 1, Invalid: 1, Unchecked: 1}, *details.Stats)

	details, err = svc.GetWithStats(context.Background(), tenant, 2)
	require.NoError(t, err)
	assert.Nil(t, details.Stats)
}
