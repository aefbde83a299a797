// internal/controller/response.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
)

const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// RequireTenant rejects requests without a numeric X-Tenant-ID header and
// stores the tenant in the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.Header.Get(TenantHeader))
		if err != nil || id < 1 {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid " + TenantHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, id)))
	})
}

// TenantID returns the tenant stored by RequireTenant, or 0.
func TenantID(ctx context.Context) int {
	id, _ := ctx.Value(tenantKey{}).(int)
	return id
}

// URLID parses the {id} route parameter.
func URLID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("[HTTP] Failed to encode response")
	}
}

// WriteError maps domain errors onto status codes.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verrs})
	case errors.Is(err, appErrors.ErrScheduleInPast), errors.Is(err, appErrors.ErrInvalidRecurrence):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case appErrors.IsNotFound(err), errors.Is(err, appErrors.ErrNoContactsFound):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case appErrors.IsInvalidTransition(err),
		errors.Is(err, appErrors.ErrCampaignInProgress),
		errors.Is(err, appErrors.ErrStaleCampaign),
		errors.Is(err, appErrors.ErrEmptyAudience):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logrus.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Error("[HTTP] Request failed")
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
