package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert311_upstream_requests_total",
		Help: "Report-source queries by outcome (ok, error, auth_error, cache_hit).",
	}, []string{"outcome"})

	staleResultsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_stale_results_discarded_total",
		Help: "Nearby-report responses discarded because a newer query superseded them.",
	})
)
