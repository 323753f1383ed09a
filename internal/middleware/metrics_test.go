package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherFamily registers m on a fresh registry, gathers, and returns the
// named family, or nil when no sample was recorded.
func gatherFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()

	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second register on the same registry should collide")
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/reports/nearby", "device")
	m.IncRateLimitRequests("/reports/nearby", "device")
	m.IncRateLimitRequests("/auth/verify", "ip")
	m.IncRateLimitBlocked("/auth/verify", "ip")
	m.IncRateLimitRedisErrors()

	checks := gatherFamily(t, m, MetricRateLimitRequests)
	if checks == nil {
		t.Fatal("no rate-limit check series recorded")
	}
	if len(checks.Metric) != 2 {
		t.Errorf("got %d label sets, want 2", len(checks.Metric))
	}
	for _, metric := range checks.Metric {
		labels := map[string]string{}
		for _, l := range metric.Label {
			labels[l.GetName()] = l.GetValue()
		}
		switch labels["endpoint"] {
		case "/reports/nearby":
			if metric.Counter.GetValue() != 2 {
				t.Errorf("nearby checks = %v, want 2", metric.Counter.GetValue())
			}
			if labels["key_type"] != "device" {
				t.Errorf("nearby key_type = %q, want device", labels["key_type"])
			}
		case "/auth/verify":
			if metric.Counter.GetValue() != 1 {
				t.Errorf("verify checks = %v, want 1", metric.Counter.GetValue())
			}
		default:
			t.Errorf("unexpected endpoint label %q", labels["endpoint"])
		}
	}

	blocked := gatherFamily(t, m, MetricRateLimitBlocked)
	if blocked == nil || len(blocked.Metric) != 1 {
		t.Fatalf("blocked series = %+v, want exactly one", blocked)
	}

	failOpens := gatherFamily(t, m, MetricRateLimitRedisErrors)
	if failOpens == nil || failOpens.Metric[0].Counter.GetValue() != 1 {
		t.Error("expected one recorded fail-open")
	}
}

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTPRequest("POST", "/alerts", "201", 0.05, 120, 340)

	requests := gatherFamily(t, m, MetricHTTPRequestsTotal)
	if requests == nil || len(requests.Metric) != 1 {
		t.Fatalf("request series = %+v, want exactly one", requests)
	}
	if requests.Metric[0].Counter.GetValue() != 1 {
		t.Errorf("count = %v, want 1", requests.Metric[0].Counter.GetValue())
	}

	duration := gatherFamily(t, m, MetricHTTPRequestDuration)
	if duration == nil || duration.Metric[0].Histogram.GetSampleCount() != 1 {
		t.Error("expected one latency observation")
	}
	if got := duration.Metric[0].Histogram.GetSampleSum(); got != 0.05 {
		t.Errorf("latency sum = %v, want 0.05", got)
	}

	respSize := gatherFamily(t, m, MetricHTTPResponseSizeBytes)
	if respSize == nil || respSize.Metric[0].Histogram.GetSampleSum() != 340 {
		t.Error("expected the response size observation")
	}
}
