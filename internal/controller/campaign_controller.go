// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/service"
)

var recurrenceTypes = []any{
	model.RecurrenceDaily,
	model.RecurrenceWeekly,
	model.RecurrenceBiweekly,
	model.RecurrenceMonthly,
	model.RecurrenceYearly,
}

// CampaignController serves the commands that change campaigns and lists.
type CampaignController struct {
	CampaignService *service.CampaignService
}

// Routes registers the command endpoints. The router must already carry
// RequireTenant.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Put("/campaigns/{id}", c.UpdateCampaign)
	r.Delete("/campaigns/{id}", c.DeleteCampaign)
	r.Post("/campaigns/{id}/schedule", c.Transition(service.EventSchedule))
	r.Post("/campaigns/{id}/cancel", c.Transition(service.EventCancel))
	r.Post("/campaigns/{id}/restart", c.Transition(service.EventRestart))
	r.Post("/campaigns/{id}/stop-recurrence", c.StopRecurrence)
	r.Post("/contact-lists/{id}/items/bulk", c.BulkAddItems)
}

type createCampaignRequest struct {
	Name            string               `json:"name"`
	Message         string               `json:"message"`
	ScheduledAt     *time.Time           `json:"scheduledAt"`
	IsRecurring     bool                 `json:"isRecurring"`
	RecurrenceType  model.RecurrenceType `json:"recurrenceType"`
	MaxExecutions   *int                 `json:"maxExecutions"`
	RecurrenceEndAt *time.Time           `json:"recurrenceEndAt"`
	ContactListID   *int                 `json:"contactListId"`
	TagID           *int                 `json:"tagListId"`
	WhatsappID      *int                 `json:"whatsappId"`
	Confirmation    bool                 `json:"confirmation"`
}

func (req createCampaignRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&req.Message, validation.Required),
		validation.Field(&req.RecurrenceType, validation.When(req.IsRecurring, validation.Required, validation.In(recurrenceTypes...))),
		validation.Field(&req.MaxExecutions, validation.Min(1)),
	)
}

func validatePatch(p service.CampaignPatch) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&p.Message, validation.NilOrNotEmpty),
		validation.Field(&p.RecurrenceType, validation.NilOrNotEmpty, validation.In(recurrenceTypes...)),
		validation.Field(&p.MaxExecutions, validation.Min(1)),
	)
}

type transitionRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type bulkItemsRequest struct {
	ContactIDs []int `json:"contactIds"`
}

func (req bulkItemsRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.ContactIDs, validation.Required, validation.Length(1, 10000)),
	)
}

type bulkItemsResponse struct {
	Records []model.ContactListItem `json:"records"`
	Skipped int                     `json:"skipped"`
	Errors  []service.ItemError     `json:"errors"`
	Summary service.ResolveSummary  `json:"summary"`
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func badRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err)
		return
	}

	campaign := &model.Campaign{
		TenantID:        TenantID(r.Context()),
		Name:            req.Name,
		Message:         req.Message,
		ScheduledAt:     req.ScheduledAt,
		IsRecurring:     req.IsRecurring,
		RecurrenceType:  req.RecurrenceType,
		MaxExecutions:   req.MaxExecutions,
		RecurrenceEndAt: req.RecurrenceEndAt,
		ContactListID:   req.ContactListID,
		TagID:           req.TagID,
		WhatsappID:      req.WhatsappID,
		Confirmation:    req.Confirmation,
	}
	if err := c.CampaignService.Create(r.Context(), campaign); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := URLID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}
	var patch service.CampaignPatch
	if err := decode(r, &patch); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if err := validatePatch(patch); err != nil {
		WriteError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.Update(r.Context(), TenantID(r.Context()), id, patch)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := URLID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}
	if err := c.CampaignService.Delete(r.Context(), TenantID(r.Context()), id); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition returns a handler applying ev to the campaign in the URL.
// schedule and restart accept an optional scheduledAt.
func (c *CampaignController) Transition(ev service.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := URLID(r)
		if err != nil {
			badRequest(w, "invalid campaign id")
			return
		}
		var req transitionRequest
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid body")
			return
		}

		campaign, err := c.CampaignService.TransitionCampaign(r.Context(), TenantID(r.Context()), id, ev,
			service.TransitionOptions{ScheduledAt: req.ScheduledAt})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, campaign)
	}
}

func (c *CampaignController) StopRecurrence(w http.ResponseWriter, r *http.Request) {
	id, err := URLID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}
	campaign, err := c.CampaignService.StopRecurrence(r.Context(), TenantID(r.Context()), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

// BulkAddItems resolves contacts into a contact list. Per-contact problems
// are part of a 200 response.
func (c *CampaignController) BulkAddItems(w http.ResponseWriter, r *http.Request) {
	listID, err := URLID(r)
	if err != nil {
		badRequest(w, "invalid contact list id")
		return
	}
	var req bulkItemsRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := c.CampaignService.BulkResolveAudience(r.Context(), TenantID(r.Context()), listID, req.ContactIDs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	records := res.Created
	if records == nil {
		records = []model.ContactListItem{}
	}
	errs := res.Errors
	if errs == nil {
		errs = []service.ItemError{}
	}
	WriteJSON(w, http.StatusOK, bulkItemsResponse{
		Records: records,
		Skipped: res.Skipped,
		Errors:  errs,
		Summary: res.Summary(),
	})
}
