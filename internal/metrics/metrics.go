// Package metrics provides Prometheus instrumentation for the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DocumentsCreatedTotal prometheus.Counter
	ClauseAcceptsTotal    *prometheus.CounterVec
	ClauseRejectsTotal    prometheus.Counter
	VersionCommitsTotal   prometheus.Counter
	AnalysisRequestsTotal *prometheus.CounterVec
	SearchQueriesTotal    *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clauseguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clauseguard_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	m.DocumentsCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "clauseguard_documents_created_total",
		Help: "Total number of documents created",
	})
	m.ClauseAcceptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clauseguard_clause_accepts_total",
			Help: "Total number of clause accept operations",
		},
		[]string{"outcome"},
	)
	m.ClauseRejectsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "clauseguard_clause_rejects_total",
		Help: "Total number of clause reject operations",
	})
	m.VersionCommitsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "clauseguard_version_commits_total",
		Help: "Total number of committed document versions",
	})
	m.AnalysisRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clauseguard_analysis_requests_total",
			Help: "Total number of calls to the analysis service",
		},
		[]string{"status"},
	)
	m.SearchQueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clauseguard_search_queries_total",
			Help: "Total number of search queries by backend",
		},
		[]string{"backend"},
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
