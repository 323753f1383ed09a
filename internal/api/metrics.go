package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var alertsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "alert311_alerts_created_total",
	Help: "Alert subscriptions created.",
})
