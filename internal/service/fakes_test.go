package service_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/whatsapp"
)

// MockCampaignRepo keeps campaigns in memory with the same status and
// version checked update as the SQL repository.
type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
	// beforeUpdate runs before every conditional write, outside the lock.
	beforeUpdate func(c *model.Campaign)
}

func newCampaignRepo(cs ...model.Campaign) *MockCampaignRepo {
	r := &MockCampaignRepo{campaigns: map[int]*model.Campaign{}}
	for _, c := range cs {
		c := c.Clone()
		r.campaigns[c.ID] = &c
		if c.ID > r.nextID {
			r.nextID = c.ID
		}
	}
	return r
}

func (r *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	stored := c.Clone()
	r.campaigns[c.ID] = &stored
	return nil
}

func (r *MockCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	out := c.Clone()
	return &out, nil
}

func (r *MockCampaignRepo) get(id int) model.Campaign {
	c, _ := r.GetByID(context.Background(), id)
	return *c
}

func (r *MockCampaignRepo) List(_ context.Context, f repository.CampaignFilter) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*model.Campaign
	for _, c := range r.campaigns {
		if c.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.IsRecurring != nil && c.IsRecurring != *f.IsRecurring {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out := c.Clone()
		matched = append(matched, &out)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if f.Offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (r *MockCampaignRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status != model.StatusScheduled {
			continue
		}
		if at := c.PlannedAt(); at != nil && !at.After(now) {
			out := c.Clone()
			due = append(due, &out)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MockCampaignRepo) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status != model.StatusInProgress {
			continue
		}
		last := c.CreatedAt
		if c.UpdatedAt != nil {
			last = *c.UpdatedAt
		}
		if last.Before(cutoff) {
			out := c.Clone()
			stale = append(stale, &out)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *MockCampaignRepo) Update(_ context.Context, c *model.Campaign, expected model.CampaignStatus) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate(c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.campaigns[c.ID]
	if !ok || stored.TenantID != c.TenantID || stored.Status != expected || stored.Version != c.Version {
		return appErrors.ErrStaleCampaign
	}
	now := time.Now()
	c.UpdatedAt = &now
	c.Version++
	out := c.Clone()
	r.campaigns[c.ID] = &out
	return nil
}

func (r *MockCampaignRepo) Delete(_ context.Context, tenantID, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(r.campaigns, id)
	return nil
}

// MockContactRepo holds contacts and their tags.
type MockContactRepo struct {
	contacts []model.Contact
	tags     map[int][]int
	err      error
}

func (r *MockContactRepo) FindByIDsAndTenant(_ context.Context, tenantID int, ids []int) ([]model.Contact, error) {
	if r.err != nil {
		return nil, r.err
	}
	want := map[int]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []model.Contact{}
	for _, c := range r.contacts {
		if c.TenantID == tenantID && want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MockContactRepo) FindIDsByTag(_ context.Context, tenantID, tagID int) ([]int, error) {
	return r.tags[tagID], nil
}

type MockListRepo struct {
	mu     sync.Mutex
	lists  map[int]model.ContactList
	nextID int
}

func newListRepo(ls ...model.ContactList) *MockListRepo {
	r := &MockListRepo{lists: map[int]model.ContactList{}, nextID: 100}
	for _, l := range ls {
		r.lists[l.ID] = l
	}
	return r
}

func (r *MockListRepo) GetByID(_ context.Context, tenantID, id int) (*model.ContactList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[id]
	if !ok || l.TenantID != tenantID {
		return nil, appErrors.NewContactListNotFound(id)
	}
	return &l, nil
}

func (r *MockListRepo) Create(_ context.Context, l *model.ContactList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	r.lists[l.ID] = *l
	return nil
}

// MockItemRepo enforces the same per-list uniqueness of source and send
// numbers as the SQL schema.
type MockItemRepo struct {
	mu        sync.Mutex
	items     map[int]*model.ContactListItem
	nextID    int
	createErr map[string]error
}

func newItemRepo() *MockItemRepo {
	return &MockItemRepo{items: map[int]*model.ContactListItem{}, createErr: map[string]error{}}
}

func (r *MockItemRepo) FindOrCreate(_ context.Context, key model.ListItemKey, defaults model.ContactListItem) (*model.ContactListItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr[key.Number]; err != nil {
		return nil, false, err
	}
	for _, it := range r.items {
		if it.Matches(key) {
			out := *it
			return &out, false, nil
		}
	}
	r.nextID++
	it := defaults
	it.ID = r.nextID
	it.Number = key.Number
	it.SourceNumber = key.Number
	it.TenantID = key.TenantID
	it.ContactListID = key.ContactListID
	it.CreatedAt = time.Now()
	r.items[it.ID] = &it
	out := it
	return &out, true, nil
}

func (r *MockItemRepo) UpdateValidation(_ context.Context, id int, number string, valid *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.items[id]
	for _, other := range r.items {
		if other.ID != id && other.TenantID == it.TenantID && other.ContactListID == it.ContactListID && other.Number == number {
			delete(r.items, id)
			return appErrors.ErrDuplicateListItem
		}
	}
	it.Number = number
	v := *valid
	it.IsWhatsappValid = &v
	return nil
}

func (r *MockItemRepo) ListAudience(_ context.Context, tenantID, listID int) ([]model.ContactListItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ContactListItem{}
	for _, it := range r.items {
		if it.TenantID == tenantID && it.ContactListID == listID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockItemRepo) Stats(ctx context.Context, tenantID, listID int) (model.AudienceStats, error) {
	items, _ := r.ListAudience(ctx, tenantID, listID)
	var s model.AudienceStats
	for _, it := range items {
		s.Total++
		switch {
		case it.IsWhatsappValid == nil:
			s.Unchecked++
		case *it.IsWhatsappValid:
			s.Valid++
		default:
			s.Invalid++
		}
	}
	return s, nil
}

func (r *MockItemRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// MockValidator answers from a table. Numbers in hang block until the
// caller's deadline.
type MockValidator struct {
	mu        sync.Mutex
	canonical map[string]string
	hang      map[string]bool
	calls     []string
}

func (v *MockValidator) CheckNumber(ctx context.Context, number string, _ int) (whatsapp.Result, error) {
	v.mu.Lock()
	v.calls = append(v.calls, number)
	hang := v.hang[number]
	canonical, ok := v.canonical[number]
	v.mu.Unlock()

	if hang {
		<-ctx.Done()
		return whatsapp.Result{}, appErrors.NewValidationUnavailable(number, ctx.Err())
	}
	if !ok {
		return whatsapp.Result{}, nil
	}
	return whatsapp.Result{CanonicalAddress: canonical, Reachable: true}, nil
}

func (v *MockValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

type dispatchCall struct {
	Campaign model.Campaign
	Audience []model.ContactListItem
}

type MockDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *MockDispatcher) Dispatch(_ context.Context, c model.Campaign, audience []model.ContactListItem) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{Campaign: c, Audience: audience})
	if d.err != nil {
		return "", d.err
	}
	return "exec-1", nil
}

func (d *MockDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type published struct {
	TenantID int
	Topic    string
	Payload  any
}

type MockNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *MockNotifier) Connect(context.Context) error { return nil }
func (n *MockNotifier) Close() error { return nil }

func (n *MockNotifier) Publish(tenantID int, topic string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{tenantID, topic, payload})
}

func (n *MockNotifier) topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Topic)
	}
	return out
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
