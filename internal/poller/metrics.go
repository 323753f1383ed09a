package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_poll_runs_total",
		Help: "Completed poll runs.",
	})

	pollMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_poll_matches_total",
		Help: "Reports that matched an active alert's address.",
	})

	pollSMSSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_poll_sms_sent_total",
		Help: "Alert notifications sent over SMS.",
	})

	pollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_poll_errors_total",
		Help: "Errors during poll runs.",
	})
)
