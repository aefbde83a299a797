package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/whatsapp"
)

var errNoNumber = errors.New("contact has no phone number")

type OutcomeKind string

const (
	OutcomeCreated               OutcomeKind = "created"
	OutcomeDuplicate             OutcomeKind = "duplicate"
	OutcomeValidationUnavailable OutcomeKind = "validation_unavailable"
	OutcomeFailed                OutcomeKind = "failed"
)

// ItemOutcome is what happened to one candidate contact.
type ItemOutcome struct {
	ContactID int
	Kind      OutcomeKind
	Item      *model.ContactListItem
	Err       error
}

type ItemError struct {
	ContactID int    `json:"contactId"`
	Reason    string `json:"reason"`
}

type ResolveResult struct {
	// Candidates is how many contacts survived the tenant-scoped lookup.
	Candidates int                     `json:"candidates"`
	Created    []model.ContactListItem `json:"created"`
	Skipped    int                     `json:"skipped"`
	Errors     []ItemError             `json:"errors"`
	Outcomes   []ItemOutcome           `json:"-"`
}

type ResolveSummary struct {
	Created            int `json:"created"`
	Duplicates         int `json:"duplicates"`
	ValidationFailures int `json:"validationFailures"`
	Failed             int `json:"failed"`
}

func (r *ResolveResult) Summary() ResolveSummary {
	var s ResolveSummary
	for _, o := range r.Outcomes {
		switch o.Kind {
		case OutcomeCreated:
			s.Created++
		case OutcomeDuplicate:
			s.Duplicates++
		case OutcomeValidationUnavailable:
			s.Created++
			s.ValidationFailures++
		case OutcomeFailed:
			if o.Item != nil {
				s.Created++
			}
			s.Failed++
		}
	}
	return s
}

func (r *ResolveResult) add(o ItemOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Item != nil && o.Kind != OutcomeDuplicate {
		r.Created = append(r.Created, *o.Item)
	}
	if o.Kind == OutcomeDuplicate {
		r.Skipped++
	}
	if o.Err != nil {
		r.Errors = append(r.Errors, ItemError{ContactID: o.ContactID, Reason: o.Err.Error()})
	}
}

// AudienceResolver materializes contacts into list items, validating each
// new number. One contact failing never stops the others.
type AudienceResolver struct {
	Contacts  repository.ContactRepositoryInterface
	Items     repository.ContactListItemRepositoryInterface
	Validator NumberValidator
	Notifier  EventNotifier
	// Timeout bounds each validator call.
	Timeout time.Duration
}

// Resolve returns an error only when the contact lookup itself fails.
// Contacts that are unknown or belong to another tenant are dropped silently.
func (r *AudienceResolver) Resolve(ctx context.Context, listID, tenantID int, contactIDs []int) (*ResolveResult, error) {
	contacts, err := r.Contacts.FindByIDsAndTenant(ctx, tenantID, uniqueIDs(contactIDs))
	if err != nil {
		return nil, err
	}

	res := &ResolveResult{Candidates: len(contacts), Created: []model.ContactListItem{}, Errors: []ItemError{}}
	for _, c := range contacts {
		res.add(r.resolveOne(ctx, listID, tenantID, c))
	}

	if len(res.Created) > 0 {
		notifierOrNop(r.Notifier).Publish(tenantID, TopicContactListItem, Notification{
			Action: "bulk-create",
			Record: map[string]any{"listId": listID, "summary": res.Summary()},
		})
	}
	logrus.WithFields(logrus.Fields{
		"list_id":   listID,
		"tenant_id": tenantID,
		"created":   len(res.Created),
		"skipped":   res.Skipped,
		"errors":    len(res.Errors),
	}).Info("[RESOLVER] Audience resolved")
	return res, nil
}

func (r *AudienceResolver) resolveOne(ctx context.Context, listID, tenantID int, c model.Contact) ItemOutcome {
	log := logrus.WithFields(logrus.Fields{"contact_id": c.ID, "list_id": listID, "tenant_id": tenantID})

	number := whatsapp.Sanitize(c.Number)
	if number == "" {
		log.Warn("[RESOLVER] Contact skipped: no phone number")
		return ItemOutcome{ContactID: c.ID, Kind: OutcomeFailed, Err: errNoNumber}
	}

	key := model.ListItemKey{Number: number, TenantID: tenantID, ContactListID: listID}
	item, created, err := r.Items.FindOrCreate(ctx, key, model.ContactListItem{Name: c.Name, Email: c.Email})
	if err != nil {
		log.WithError(err).Warn("[RESOLVER] Failed to create list item")
		return ItemOutcome{ContactID: c.ID, Kind: OutcomeFailed, Err: err}
	}
	if !created {
		return ItemOutcome{ContactID: c.ID, Kind: OutcomeDuplicate, Item: item}
	}

	check, err := r.check(ctx, item.Number, tenantID)
	if err != nil {
		log.WithError(err).Warn("[RESOLVER] Number validation unavailable")
		return ItemOutcome{ContactID: c.ID, Kind: OutcomeValidationUnavailable, Item: item, Err: err}
	}

	valid := check.Reachable
	if valid && check.CanonicalAddress != "" {
		item.Number = check.CanonicalAddress
	}
	if err := r.Items.UpdateValidation(ctx, item.ID, item.Number, &valid); err != nil {
		if errors.Is(err, appErrors.ErrDuplicateListItem) {
			log.WithField("number", item.Number).Info("[RESOLVER] Contact shares a canonical address already in the list")
			return ItemOutcome{ContactID: c.ID, Kind: OutcomeDuplicate}
		}
		log.WithError(err).Warn("[RESOLVER] Failed to store validation result")
		return ItemOutcome{ContactID: c.ID, Kind: OutcomeFailed, Item: item, Err: err}
	}
	item.IsWhatsappValid = &valid
	return ItemOutcome{ContactID: c.ID, Kind: OutcomeCreated, Item: item}
}

// check runs the validator under its own deadline. A timeout surfaces as
// ValidationUnavailable like any other validator failure.
func (r *AudienceResolver) check(ctx context.Context, number string, tenantID int) (whatsapp.Result, error) {
	if r.Validator == nil {
		return whatsapp.Result{}, appErrors.NewValidationUnavailable(number, errors.New("no validator configured"))
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	type answer struct {
		res whatsapp.Result
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		res, err := r.Validator.CheckNumber(ctx, number, tenantID)
		ch <- answer{res, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil && !appErrors.IsValidationUnavailable(a.err) {
			return a.res, appErrors.NewValidationUnavailable(number, a.err)
		}
		return a.res, a.err
	case <-ctx.Done():
		return whatsapp.Result{}, appErrors.NewValidationUnavailable(number, ctx.Err())
	}
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
