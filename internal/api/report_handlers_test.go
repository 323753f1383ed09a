package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sudd-bot/alert311/internal/alert"
	"github.com/sudd-bot/alert311/internal/source"
	"github.com/sudd-bot/alert311/internal/user"
)

// mockSearcher is a test double for the upstream report source.
type mockSearcher struct {
	searchFn   func(ctx context.Context, p source.SearchParams) ([]source.Ticket, error)
	lastParams source.SearchParams
}

func (m *mockSearcher) Search(ctx context.Context, p source.SearchParams) ([]source.Ticket, error) {
	m.lastParams = p
	if m.searchFn != nil {
		return m.searchFn(ctx, p)
	}
	return nil, nil
}

func newTestReportHandlers(searcher source.Searcher, users user.Repository, alerts alert.Repository, deliveries alert.DeliveryRepository) *ReportHandlers {
	return NewReportHandlers(ReportHandlersConfig{
		Searcher:   searcher,
		Users:      users,
		Alerts:     alerts,
		Deliveries: deliveries,
	})
}

func TestNearby(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(ctx context.Context, p source.SearchParams) ([]source.Ticket, error) {
			return []source.Ticket{
				{
					ID:             "r1",
					Address:        "100 Market St",
					Latitude:       37.7941,
					Longitude:      -122.3950,
					Status:         "open",
					TicketTypeName: "Encampment",
					CreatedAt:      "2026-08-30T10:00:00Z",
				},
				{
					ID:             "r2",
					Address:        "102 Market St",
					Latitude:       37.7941,
					Longitude:      -122.3950,
					Status:         "open",
					TicketTypeName: "Street Cleaning",
					CreatedAt:      "2026-08-30T11:00:00Z",
				},
			}, nil
		},
	}
	h := newTestReportHandlers(searcher, user.NewInMemoryRepository(), alert.NewInMemoryRepository(), alert.NewInMemoryDeliveryRepository())

	req := httptest.NewRequest(http.MethodGet, "/reports/nearby?lat=37.7941&lng=-122.3950", nil)
	rec := httptest.NewRecorder()
	h.Nearby(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp nearbyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(resp.Reports))
	}
	// Both tickets share a quantized coordinate, so they cluster together.
	if len(resp.Clusters) != 1 {
		t.Errorf("got %d clusters, want 1", len(resp.Clusters))
	}
	if resp.Reports[0].DistanceMeters == nil {
		t.Error("expected distance_meters to be populated")
	}
}

func TestNearby_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing coordinates", ""},
		{"non-numeric lat", "lat=abc&lng=-122.4"},
		{"out of range", "lat=95.0&lng=-122.4"},
		{"zero limit", "lat=37.77&lng=-122.42&limit=0"},
		{"negative limit", "lat=37.77&lng=-122.42&limit=-5"},
		{"bad scope", "lat=37.77&lng=-122.42&scope=everything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestReportHandlers(&mockSearcher{}, user.NewInMemoryRepository(), alert.NewInMemoryRepository(), alert.NewInMemoryDeliveryRepository())

			req := httptest.NewRequest(http.MethodGet, "/reports/nearby?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.Nearby(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d, body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != ErrCodeValidation {
				t.Errorf("error code = %q, want %q", code, ErrCodeValidation)
			}
		})
	}
}

func TestNearby_LimitCapped(t *testing.T) {
	searcher := &mockSearcher{}
	h := newTestReportHandlers(searcher, user.NewInMemoryRepository(), alert.NewInMemoryRepository(), alert.NewInMemoryDeliveryRepository())

	req := httptest.NewRequest(http.MethodGet, "/reports/nearby?lat=37.77&lng=-122.42&limit=5000", nil)
	rec := httptest.NewRecorder()
	h.Nearby(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if searcher.lastParams.Limit != maxNearbyLimit {
		t.Errorf("limit = %d, want capped to %d", searcher.lastParams.Limit, maxNearbyLimit)
	}
}

func TestNearby_SourceDown(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(ctx context.Context, p source.SearchParams) ([]source.Ticket, error) {
			return nil, errors.New("upstream 500")
		},
	}
	h := newTestReportHandlers(searcher, user.NewInMemoryRepository(), alert.NewInMemoryRepository(), alert.NewInMemoryDeliveryRepository())

	req := httptest.NewRequest(http.MethodGet, "/reports/nearby?lat=37.77&lng=-122.42", nil)
	rec := httptest.NewRecorder()
	h.Nearby(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeUpstreamUnavailable {
		t.Errorf("error code = %q, want %q", code, ErrCodeUpstreamUnavailable)
	}
}

func TestHistory(t *testing.T) {
	users := user.NewInMemoryRepository()
	alerts := alert.NewInMemoryRepository()
	deliveries := alert.NewInMemoryDeliveryRepository()
	u := newVerifiedUser(t, users, "+14155550123")
	h := newTestReportHandlers(&mockSearcher{}, users, alerts, deliveries)

	ctx := context.Background()
	a := &alert.Alert{UserID: u.ID, Address: "1 First St", Latitude: 37.77, Longitude: -122.42, ReportTypeID: "t", Active: true}
	if err := alerts.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	for _, reportID := range []string{"r1", "r2"} {
		if _, err := deliveries.Record(ctx, &alert.Delivery{AlertID: a.ID, ReportID: reportID}); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/reports?phone=%2B14155550123", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Deliveries) != 2 {
		t.Errorf("got %d deliveries, want 2", len(resp.Deliveries))
	}
}

func TestHistory_EmptyIsNotNull(t *testing.T) {
	users := user.NewInMemoryRepository()
	newVerifiedUser(t, users, "+14155550123")
	h := newTestReportHandlers(&mockSearcher{}, users, alert.NewInMemoryRepository(), alert.NewInMemoryDeliveryRepository())

	req := httptest.NewRequest(http.MethodGet, "/reports?phone=%2B14155550123", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"deliveries":[]`) {
		t.Errorf("expected empty deliveries array, got: %s", rec.Body.String())
	}
}

func TestHistoryByAlert(t *testing.T) {
	users := user.NewInMemoryRepository()
	alerts := alert.NewInMemoryRepository()
	deliveries := alert.NewInMemoryDeliveryRepository()
	u := newVerifiedUser(t, users, "+14155550123")
	h := newTestReportHandlers(&mockSearcher{}, users, alerts, deliveries)

	ctx := context.Background()
	a := &alert.Alert{UserID: u.ID, Address: "1 First St", Latitude: 37.77, Longitude: -122.42, ReportTypeID: "t", Active: true}
	b := &alert.Alert{UserID: u.ID, Address: "2 Second St", Latitude: 37.78, Longitude: -122.43, ReportTypeID: "t", Active: true}
	for _, al := range []*alert.Alert{a, b} {
		if err := alerts.Create(ctx, al); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := deliveries.Record(ctx, &alert.Delivery{AlertID: a.ID, ReportID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := deliveries.Record(ctx, &alert.Delivery{AlertID: b.ID, ReportID: "r2"}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports/"+a.ID+"?phone=%2B14155550123", nil)
	rec := httptest.NewRecorder()
	h.HistoryByAlert(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Deliveries) != 1 {
		t.Fatalf("got %d deliveries, want 1 for this alert only", len(resp.Deliveries))
	}
	if resp.Deliveries[0].ReportID != "r1" {
		t.Errorf("report_id = %q, want r1", resp.Deliveries[0].ReportID)
	}
}

func TestHistoryByAlert_ForeignAlert(t *testing.T) {
	users := user.NewInMemoryRepository()
	alerts := alert.NewInMemoryRepository()
	owner := newVerifiedUser(t, users, "+14155550123")
	newVerifiedUser(t, users, "+14155550124")
	h := newTestReportHandlers(&mockSearcher{}, users, alerts, alert.NewInMemoryDeliveryRepository())

	a := &alert.Alert{UserID: owner.ID, Address: "1 First St", Latitude: 37.77, Longitude: -122.42, ReportTypeID: "t", Active: true}
	if err := alerts.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports/"+a.ID+"?phone=%2B14155550124", nil)
	rec := httptest.NewRecorder()
	h.HistoryByAlert(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeAlertNotFound {
		t.Errorf("error code = %q, want %q", code, ErrCodeAlertNotFound)
	}
}
