package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChatRequestsTotal counts chat requests by classification outcome.
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupchat",
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests",
		},
		[]string{"kind"},
	)

	StreamFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "groupchat",
			Name:      "stream_flushes_total",
			Help:      "Streamed assistant events broadcast to groups",
		},
		[]string{"final"},
	)

	GenerationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groupchat",
			Name:      "generation_errors_total",
			Help:      "Assistant generations that failed before completion",
		},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "groupchat",
			Name:      "generation_duration_seconds",
			Help:      "Time from opening a generation stream to its final event",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "groupchat",
			Name:      "connections_active",
			Help:      "Currently registered websocket connections",
		},
	)

	// BroadcastDropsTotal counts deliveries dropped because a client send buffer was full.
	BroadcastDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "groupchat",
			Name:      "broadcast_drops_total",
			Help:      "Events dropped for slow or disconnected clients",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
