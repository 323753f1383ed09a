package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// logLine runs one request through the logging middleware and returns the
// parsed JSON log record.
func logLine(t *testing.T, handler http.HandlerFunc, mutate func(*http.Request)) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	Logging(logger)(handler).ServeHTTP(rec, req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to parse log line %q: %v", buf.String(), err)
	}
	return record
}

func TestLogging_RecordsRequestFields(t *testing.T) {
	record := logLine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("0123456789"))
	}, nil)

	if record["method"] != "GET" || record["path"] != "/alerts" {
		t.Errorf("method/path = %v/%v, want GET /alerts", record["method"], record["path"])
	}
	if record["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", record["status"])
	}
	if record["size"] != float64(10) {
		t.Errorf("size = %v, want 10", record["size"])
	}
	if record["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", record["level"])
	}
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			record := logLine(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, nil)
			if record["level"] != tt.level {
				t.Errorf("level = %v, want %s for status %d", record["level"], tt.level, tt.status)
			}
		})
	}
}

func TestLogging_CapturesErrorCode(t *testing.T) {
	record := logLine(t, func(w http.ResponseWriter, r *http.Request) {
		SetErrorCode(r.Context(), "validation_error")
		w.WriteHeader(http.StatusBadRequest)
	}, nil)

	if record["error_code"] != "validation_error" {
		t.Errorf("error_code = %v, want validation_error", record["error_code"])
	}
}

func TestLogging_NoErrorCodeOnSuccess(t *testing.T) {
	// A code set by a handler that ends up succeeding stays out of the log.
	record := logLine(t, func(w http.ResponseWriter, r *http.Request) {
		SetErrorCode(r.Context(), "leftover")
		w.WriteHeader(http.StatusOK)
	}, nil)

	if _, present := record["error_code"]; present {
		t.Error("error_code must only appear on 4xx/5xx responses")
	}
}

func TestLogging_IncludesDeviceID(t *testing.T) {
	record := logLine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, func(r *http.Request) {
		*r = *r.WithContext(SetDeviceID(r.Context(), "ios-7f3c2e1a"))
	})

	if record["device_id"] != "ios-7f3c2e1a" {
		t.Errorf("device_id = %v, want ios-7f3c2e1a", record["device_id"])
	}
}

func TestSetErrorCode_WithoutMiddleware(t *testing.T) {
	// Must be a silent no-op so handlers can always call it.
	ctx := context.Background()
	SetErrorCode(ctx, "whatever")
	if got := GetErrorCode(ctx); got != "" {
		t.Errorf("GetErrorCode = %q, want empty without the middleware", got)
	}
}

func TestDeviceID_CopiesHeader(t *testing.T) {
	var got string
	h := DeviceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetDeviceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set(DeviceIDHeader, "android-55aa")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "android-55aa" {
		t.Errorf("device ID = %q, want android-55aa", got)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want the first write", rw.statusCode)
	}
}

func TestNewLogger_Environments(t *testing.T) {
	if logger := NewLogger("production"); logger == nil {
		t.Fatal("expected a production logger")
	}
	if logger := NewLogger("development"); !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("development logger should emit debug records")
	}
	if logger := NewLogger("production"); logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("production logger should suppress debug records")
	}
}
