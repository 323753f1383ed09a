package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sudd-bot/alert311/internal/api"
	"github.com/sudd-bot/alert311/internal/middleware"
)

// routerConfig collects the handlers and cross-cutting pieces the HTTP
// surface is built from.
type routerConfig struct {
	Logger  *slog.Logger
	Metrics *middleware.Metrics
	Limits  middleware.RateLimitStore

	CORSOrigins  []string
	PprofEnabled bool
	Env          string

	Auth    *api.AuthHandlers
	Alerts  *api.AlertHandlers
	Reports *api.ReportHandlers
	WS      *api.WebSocketHandlers
	Cron    *api.CronHandlers
	Health  *api.HealthHandlers
}

// newRouter builds the full route table and wraps it in the middleware
// chain. Chain order, outermost first: RequestID -> DeviceID -> Logging ->
// HTTPMetrics -> CORS -> pprof -> global rate limit.
func newRouter(rc routerConfig) http.Handler {
	globalLimit := middleware.RateLimiter(rc.Limits, middleware.DefaultGlobalLimit(), middleware.DeviceKeyFunc())
	verifyLimit := middleware.RateLimiter(rc.Limits, middleware.DefaultVerifyLimit(), middleware.DeviceKeyFunc())
	nearbyLimit := middleware.RateLimiter(rc.Limits, middleware.DefaultNearbyLimit(), middleware.DeviceKeyFunc())

	mux := http.NewServeMux()

	mux.Handle("/auth/register", verifyLimit(http.HandlerFunc(rc.Auth.Register)))
	mux.Handle("/auth/verify", verifyLimit(http.HandlerFunc(rc.Auth.Verify)))
	mux.HandleFunc("/auth/me", rc.Auth.Me)

	mux.HandleFunc("/alerts", rc.Alerts.HandleAlerts)
	mux.HandleFunc("/alerts/", rc.Alerts.HandleAlertByID)

	mux.Handle("/reports/nearby", nearbyLimit(http.HandlerFunc(rc.Reports.Nearby)))
	mux.HandleFunc("/reports", rc.Reports.History)
	mux.HandleFunc("/reports/", rc.Reports.HistoryByAlert)

	mux.HandleFunc("/ws/reports", rc.WS.SubscribeToReports)
	mux.HandleFunc("/cron/poll", rc.Cron.Poll)

	mux.HandleFunc("/health", rc.Health.Health)
	mux.HandleFunc("/ready", rc.Health.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]string{"service": "alert311-api", "version": "0.1.0"})
	})

	var handler http.Handler = mux
	handler = globalLimit(handler)
	// pprof sits inside CORS but outside the rate limit so profiling a
	// loaded instance never competes with client budgets.
	handler = middleware.Pprof(rc.PprofEnabled, rc.Env)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: rc.CORSOrigins,
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", "X-Device-ID"},
	})(handler)
	handler = middleware.HTTPMetrics(rc.Metrics)(handler)
	handler = middleware.Logging(rc.Logger)(handler)
	handler = middleware.DeviceID(handler)
	handler = middleware.RequestID(handler)
	return handler
}
