package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedSubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_feed_subscribes_total",
		Help: "WebSocket subscriptions to the live report feed.",
	})

	feedUnsubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_feed_unsubscribes_total",
		Help: "WebSocket disconnects from the live report feed.",
	})

	feedBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert311_feed_broadcasts_total",
		Help: "Report events broadcast to feed subscribers.",
	})

	feedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert311_feed_connections",
		Help: "Open WebSocket connections on the live report feed.",
	})
)
