// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edupath",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edupath",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edupath",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	ListenerConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edupath",
		Name:      "listener_connections",
		Help:      "Open WebSocket listener connections.",
	})

	ListenerPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edupath",
		Name:      "listener_publishes_total",
		Help:      "Snapshots published to listeners by topic kind.",
	}, []string{"kind"})

	StatusRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edupath",
		Name:      "status_recomputes_total",
		Help:      "Debounced application status recomputes by outcome.",
	}, []string{"outcome"})
)
