package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sudd-bot/alert311/internal/middleware"
)

// newChain assembles the server's middleware stack, outermost first, around
// the given mux and returns the handler plus the captured log buffer.
func newChain(mux http.Handler) (http.Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var h http.Handler = mux
	h = middleware.HTTPMetrics(middleware.NewMetrics())(h)
	h = middleware.Logging(logger)(h)
	h = middleware.DeviceID(h)
	h = middleware.RequestID(h)
	return h, &buf
}

func parseLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse log line %q: %v", buf.String(), err)
	}
	return record
}

func TestChain_RequestIDReachesHandlerAndLog(t *testing.T) {
	var seenByHandler string
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/nearby", func(w http.ResponseWriter, r *http.Request) {
		seenByHandler = middleware.GetRequestID(r.Context())
		w.Write([]byte(`{"reports":[]}`))
	})
	h, buf := newChain(mux)

	req := httptest.NewRequest(http.MethodGet, "/reports/nearby?lat=37.7749&lng=-122.4194", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	echoed := rec.Header().Get(middleware.RequestIDHeader)
	if echoed == "" || echoed != seenByHandler {
		t.Errorf("handler saw %q, response echoed %q, want one shared ID", seenByHandler, echoed)
	}
	if record := parseLogLine(t, buf); record["request_id"] != echoed {
		t.Errorf("log request_id = %v, want %q", record["request_id"], echoed)
	}
}

func TestChain_ClientSuppliedRequestIDPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"alerts":[]}`))
	})
	h, buf := newChain(mux)

	req := httptest.NewRequest(http.MethodGet, "/alerts?phone=%2B14155550123", nil)
	req.Header.Set(middleware.RequestIDHeader, "mobile-retry-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(middleware.RequestIDHeader); got != "mobile-retry-7" {
		t.Errorf("echoed ID = %q, want the client's", got)
	}
	if record := parseLogLine(t, buf); record["request_id"] != "mobile-retry-7" {
		t.Errorf("log request_id = %v, want the client's", record["request_id"])
	}
}

func TestChain_DeviceIDFlowsToLog(t *testing.T) {
	var seenByHandler string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		seenByHandler = middleware.GetDeviceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h, buf := newChain(mux)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"phone":"+14155550123"}`))
	req.Header.Set(middleware.DeviceIDHeader, "ios-7f3c2e1a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seenByHandler != "ios-7f3c2e1a" {
		t.Errorf("handler saw device %q, want ios-7f3c2e1a", seenByHandler)
	}
	if record := parseLogLine(t, buf); record["device_id"] != "ios-7f3c2e1a" {
		t.Errorf("log device_id = %v, want ios-7f3c2e1a", record["device_id"])
	}
}

func TestChain_HandlerErrorCodeLogged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		middleware.SetErrorCode(r.Context(), "phone_not_verified")
		w.WriteHeader(http.StatusForbidden)
	})
	h, buf := newChain(mux)

	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	record := parseLogLine(t, buf)
	if record["error_code"] != "phone_not_verified" {
		t.Errorf("log error_code = %v, want phone_not_verified", record["error_code"])
	}
	if record["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for a 403", record["level"])
	}
}

func TestChain_ConcurrentRequestsKeepDistinctIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/nearby", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(middleware.GetRequestID(r.Context())))
	})
	h, _ := newChain(mux)

	const n = 16
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			req := httptest.NewRequest(http.MethodGet, "/reports/nearby", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			ids <- rec.Body.String()
		}()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		if id == "" {
			t.Fatal("request finished without an ID")
		}
		if seen[id] {
			t.Fatalf("duplicate request ID %q across concurrent requests", id)
		}
		seen[id] = true
	}
}
