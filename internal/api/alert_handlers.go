package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/geo"
	"github.com/sudd-bot/alert311/internal/geocode"
	"github.com/sudd-bot/alert311/internal/user"
)

// AlertHandlers provides CRUD endpoints for alert subscriptions.
type AlertHandlers struct {
	users    user.Repository
	alerts   alert.Repository
	geocoder geocode.Resolver

	defaultTypeID   string
	defaultTypeName string

	logger *slog.Logger
}

// AlertHandlersConfig configures the alert handlers.
type AlertHandlersConfig struct {
	Users    user.Repository
	Alerts   alert.Repository
	Geocoder geocode.Resolver

	DefaultReportTypeID   string
	DefaultReportTypeName string

	Logger *slog.Logger
}

// NewAlertHandlers creates a new AlertHandlers.
func NewAlertHandlers(config AlertHandlersConfig) *AlertHandlers {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandlers{
		users:           config.Users,
		alerts:          config.Alerts,
		geocoder:        config.Geocoder,
		defaultTypeID:   config.DefaultReportTypeID,
		defaultTypeName: config.DefaultReportTypeName,
		logger:          logger,
	}
}

// createAlertRequest is the request body for POST /alerts.
type createAlertRequest struct {
	Phone          string   `json:"phone"`
	Address        string   `json:"address"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	ReportTypeID   string   `json:"report_type_id,omitempty"`
	ReportTypeName string   `json:"report_type_name,omitempty"`
}

// listAlertsResponse is the response body for GET /alerts.
type listAlertsResponse struct {
	Alerts []*alert.Alert `json:"alerts"`
}

// HandleAlerts dispatches /alerts by method.
func (h *AlertHandlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// create handles POST /alerts.
// Coordinates are taken from the request when present; otherwise the
// address is geocoded. Either way the location must fall inside the
// San Francisco service boundary.
func (h *AlertHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	u := requireVerifiedUser(w, r, h.users, h.logger, req.Phone)
	if u == nil {
		return
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Address is required")
		return
	}

	var lat, lng float64
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		lat, lng = *req.Latitude, *req.Longitude
		if !geo.Valid(lat, lng) {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Invalid coordinates")
			return
		}
	case h.geocoder != nil:
		coords, err := h.geocoder.Geocode(r.Context(), address)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "geocoding failed", "address", address, "error", err)
			WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeUpstreamUnavailable, "Geocoding service unavailable")
			return
		}
		if coords == nil {
			WriteError(w, r.Context(), http.StatusUnprocessableEntity, ErrCodeGeocodingFailed, "Could not find that address in San Francisco")
			return
		}
		lat, lng = coords.Latitude, coords.Longitude
	default:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Coordinates are required")
		return
	}

	if !geo.SanFrancisco.Contains(lat, lng) {
		WriteError(w, r.Context(), http.StatusUnprocessableEntity, ErrCodeOutsideServiceArea, "Location is outside San Francisco")
		return
	}

	typeID := req.ReportTypeID
	typeName := req.ReportTypeName
	if typeID == "" {
		typeID = h.defaultTypeID
		typeName = h.defaultTypeName
	}

	a := &alert.Alert{
		UserID:         u.ID,
		Address:        address,
		Latitude:       lat,
		Longitude:      lng,
		ReportTypeID:   typeID,
		ReportTypeName: typeName,
		Active:         true,
	}
	if err := h.alerts.Create(r.Context(), a); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create alert", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to create alert")
		return
	}

	alertsCreated.Inc()
	WriteJSON(w, http.StatusCreated, a)
}

// list handles GET /alerts?phone=...
func (h *AlertHandlers) list(w http.ResponseWriter, r *http.Request) {
	u := requireVerifiedUser(w, r, h.users, h.logger, r.URL.Query().Get("phone"))
	if u == nil {
		return
	}

	alerts, err := h.alerts.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list alerts", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}

	WriteJSON(w, http.StatusOK, listAlertsResponse{Alerts: alerts})
}

// updateAlertRequest is the request body for PATCH /alerts/{id}.
type updateAlertRequest struct {
	Active *bool `json:"active"`
}

// HandleAlertByID dispatches /alerts/{id} by method.
func (h *AlertHandlers) HandleAlertByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/alerts/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}

	u := requireVerifiedUser(w, r, h.users, h.logger, r.URL.Query().Get("phone"))
	if u == nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, u, id)
	case http.MethodPatch:
		h.update(w, r, u, id)
	case http.MethodDelete:
		h.delete(w, r, u, id)
	default:
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// get handles GET /alerts/{id}.
func (h *AlertHandlers) get(w http.ResponseWriter, r *http.Request, u *user.User, id string) {
	a, err := h.alerts.GetByID(r.Context(), u.ID, id)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeAlertNotFound, "Alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get alert", "alert_id", id, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to get alert")
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// update handles PATCH /alerts/{id}. Only the active flag is mutable.
func (h *AlertHandlers) update(w http.ResponseWriter, r *http.Request, u *user.User, id string) {
	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.Active == nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "active is required")
		return
	}

	a, err := h.alerts.SetActive(r.Context(), u.ID, id, *req.Active)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeAlertNotFound, "Alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to update alert", "alert_id", id, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to update alert")
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// delete handles DELETE /alerts/{id}.
func (h *AlertHandlers) delete(w http.ResponseWriter, r *http.Request, u *user.User, id string) {
	if err := h.alerts.Delete(r.Context(), u.ID, id); err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeAlertNotFound, "Alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete alert", "alert_id", id, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to delete alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
