// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvlive"

var (
	// EventsProcessed counts coordinator events by kind
	// (connect, edit, submit, disconnect).
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Coordinator events handled, by kind.",
	}, []string{"kind"})

	// InvalidTokens counts join or edit attempts with unresolvable tokens.
	InvalidTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalid_tokens_total",
		Help:      "Events rejected because the token resolved to no slot.",
	})

	// BroadcastsDelivered counts per-connection event deliveries.
	BroadcastsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_delivered_total",
		Help:      "Channel events delivered to individual connections.",
	})

	// BroadcastFailures counts per-connection delivery failures.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_failures_total",
		Help:      "Channel event deliveries that failed.",
	})

	// StorageFailures counts failed durable writes.
	StorageFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_failures_total",
		Help:      "Durable read or write operations that failed.",
	})

	// ActiveConnections tracks currently open transport connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Currently open WebSocket connections.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
