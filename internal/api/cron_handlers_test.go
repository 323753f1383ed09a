package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sudd-bot/alert311/internal/poller"
)

// mockPollRunner is a test double for the poll runner.
type mockPollRunner struct {
	stats poller.Stats
	err   error
	calls int
}

func (m *mockPollRunner) RunOnce(ctx context.Context) (poller.Stats, error) {
	m.calls++
	return m.stats, m.err
}

func TestCronPoll(t *testing.T) {
	runner := &mockPollRunner{stats: poller.Stats{AlertsChecked: 3, ReportsMatched: 2, Deliveries: 1, SMSSent: 1}}
	h := NewCronHandlers("topsecret", runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/cron/poll", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.Poll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("RunOnce called %d times, want 1", runner.calls)
	}

	var stats poller.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to parse stats: %v", err)
	}
	if stats.AlertsChecked != 3 || stats.SMSSent != 1 {
		t.Errorf("stats = %+v, want alerts_checked=3 sms_sent=1", stats)
	}
}

func TestCronPoll_Auth(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", "Bearer wrong"},
		{"no bearer prefix", "topsecret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockPollRunner{}
			h := NewCronHandlers("topsecret", runner, nil)

			req := httptest.NewRequest(http.MethodPost, "/cron/poll", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.Poll(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if code := decodeErrorCode(t, rec); code != ErrCodeAuthFailed {
				t.Errorf("error code = %q, want %q", code, ErrCodeAuthFailed)
			}
			if runner.calls != 0 {
				t.Error("RunOnce must not run for unauthorized callers")
			}
		})
	}
}

func TestCronPoll_MethodNotAllowed(t *testing.T) {
	h := NewCronHandlers("topsecret", &mockPollRunner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/cron/poll", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.Poll(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestCronPoll_RunFailure(t *testing.T) {
	runner := &mockPollRunner{err: errors.New("database down")}
	h := NewCronHandlers("topsecret", runner, nil)

	req := httptest.NewRequest(http.MethodPost, "/cron/poll", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	h.Poll(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeInternal {
		t.Errorf("error code = %q, want %q", code, ErrCodeInternal)
	}
}
