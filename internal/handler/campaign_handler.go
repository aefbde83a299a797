// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-engine/internal/controller"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/service"
)

// CampaignHandler serves the read side of campaigns.
type CampaignHandler struct {
	Service *service.CampaignService
}

// NewCampaignHandler creates a new CampaignHandler with the given service
func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

func (h *CampaignHandler) Routes(r chi.Router) {
	r.Get("/campaigns", h.ListCampaignsHandler)
	r.Get("/campaigns/{id}", h.GetCampaignHandlerWithStats)
}

// ListCampaignsHandler returns a page of the tenant's campaigns. Supported
// query parameters: searchParam, status, isRecurring, pageNumber, pageSize.
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.ListFilter{
		TenantID: controller.TenantID(r.Context()),
		Search:   q.Get("searchParam"),
		Page:     1,
	}

	if p, err := strconv.Atoi(q.Get("pageNumber")); err == nil && p > 0 {
		f.Page = p
	}
	if ps, err := strconv.Atoi(q.Get("pageSize")); err == nil && ps > 0 {
		f.PageSize = ps
	}
	if s := q.Get("status"); s != "" {
		status := model.CampaignStatus(s)
		if !status.Valid() {
			controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + s})
			return
		}
		f.Status = status
	}
	if s := q.Get("isRecurring"); s != "" {
		recurring, err := strconv.ParseBool(s)
		if err != nil {
			controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "isRecurring must be a boolean"})
			return
		}
		f.IsRecurring = &recurring
	}

	page, err := h.Service.List(r.Context(), f)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	if page.Records == nil {
		page.Records = []*model.Campaign{}
	}
	controller.WriteJSON(w, http.StatusOK, page)
}

// GetCampaignHandlerWithStats returns one campaign with its audience counts.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, err := controller.URLID(r)
	if err != nil {
		controller.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return
	}

	details, err := h.Service.GetWithStats(r.Context(), controller.TenantID(r.Context()), id)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}

	logrus.WithField("campaign_id", id).Debug("[HTTP] Returning campaign details with stats")
	controller.WriteJSON(w, http.StatusOK, details)
}
