package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/geo"
	"github.com/sudd-bot/alert311/internal/report"
	"github.com/sudd-bot/alert311/internal/source"
	"github.com/sudd-bot/alert311/internal/user"
)

// maxNearbyLimit caps the nearby-report result count a client may request.
const maxNearbyLimit = 100

// ReportHandlers serves nearby-report queries and delivery history.
type ReportHandlers struct {
	searcher   source.Searcher
	users      user.Repository
	alerts     alert.Repository
	deliveries alert.DeliveryRepository
	logger     *slog.Logger
}

// ReportHandlersConfig configures the report handlers.
type ReportHandlersConfig struct {
	Searcher   source.Searcher
	Users      user.Repository
	Alerts     alert.Repository
	Deliveries alert.DeliveryRepository
	Logger     *slog.Logger
}

// NewReportHandlers creates a new ReportHandlers.
func NewReportHandlers(config ReportHandlersConfig) *ReportHandlers {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandlers{
		searcher:   config.Searcher,
		users:      config.Users,
		alerts:     config.Alerts,
		deliveries: config.Deliveries,
		logger:     logger,
	}
}

// nearbyResponse is the response body for GET /reports/nearby.
// Reports are the flat source-ordered list; Clusters group them by
// quantized coordinate for map markers.
type nearbyResponse struct {
	Reports  []report.Report  `json:"reports"`
	Clusters []report.Cluster `json:"clusters"`
}

// Nearby handles GET /reports/nearby?lat=&lng=&type_id=&search=&limit=&scope=.
func (h *ReportHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil || !geo.Valid(lat, lng) {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "lat and lng must be valid coordinates")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		if n > maxNearbyLimit {
			n = maxNearbyLimit
		}
		limit = n
	}

	scope := q.Get("scope")
	if scope != "" && scope != source.ScopeRecentlyOpened && scope != source.ScopeRecentlyClosed {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "scope must be recently_opened or recently_closed")
		return
	}

	tickets, err := h.searcher.Search(r.Context(), source.SearchParams{
		Latitude:     lat,
		Longitude:    lng,
		TicketTypeID: q.Get("type_id"),
		Search:       q.Get("search"),
		Limit:        limit,
		Scope:        scope,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "nearby search failed", "error", err)
		WriteError(w, r.Context(), http.StatusBadGateway, ErrCodeUpstreamUnavailable, "Report source unavailable")
		return
	}

	now := time.Now()
	reports := make([]report.Report, 0, len(tickets))
	for _, t := range tickets {
		reports = append(reports, source.MapTicket(t, lat, lng, now))
	}

	WriteJSON(w, http.StatusOK, nearbyResponse{
		Reports:  reports,
		Clusters: report.Aggregate(reports),
	})
}

// historyResponse is the response body for the delivery-history endpoints.
type historyResponse struct {
	Deliveries []*alert.Delivery `json:"deliveries"`
}

// History handles GET /reports?phone=... and returns the delivery history
// across all of the caller's alerts, newest first per alert.
func (h *ReportHandlers) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	u := requireVerifiedUser(w, r, h.users, h.logger, r.URL.Query().Get("phone"))
	if u == nil {
		return
	}

	alerts, err := h.alerts.ListByUser(r.Context(), u.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list alerts", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list deliveries")
		return
	}

	all := []*alert.Delivery{}
	for _, a := range alerts {
		ds, err := h.deliveries.ListByAlert(r.Context(), a.ID)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to list deliveries", "alert_id", a.ID, "error", err)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list deliveries")
			return
		}
		all = append(all, ds...)
	}

	WriteJSON(w, http.StatusOK, historyResponse{Deliveries: all})
}

// HistoryByAlert handles GET /reports/{alert_id}?phone=...
func (h *ReportHandlers) HistoryByAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	alertID := strings.TrimPrefix(r.URL.Path, "/reports/")
	if alertID == "" || strings.Contains(alertID, "/") {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}

	u := requireVerifiedUser(w, r, h.users, h.logger, r.URL.Query().Get("phone"))
	if u == nil {
		return
	}

	// Ownership check: the alert must belong to the caller.
	if _, err := h.alerts.GetByID(r.Context(), u.ID, alertID); err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeAlertNotFound, "Alert not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get alert", "alert_id", alertID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list deliveries")
		return
	}

	ds, err := h.deliveries.ListByAlert(r.Context(), alertID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list deliveries", "alert_id", alertID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list deliveries")
		return
	}
	if ds == nil {
		ds = []*alert.Delivery{}
	}

	WriteJSON(w, http.StatusOK, historyResponse{Deliveries: ds})
}
