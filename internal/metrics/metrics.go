// Package metrics exposes Prometheus collectors for the HTTP API and the core services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/model"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	reg *prometheus.Registry

	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	denied    *prometheus.CounterVec
	artifacts *prometheus.CounterVec
	bytes     prometheus.Counter
	tokens    *prometheus.CounterVec
}

// New registers all collectors, including Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandocs_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loandocs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandocs_access_denied_total",
			Help: "Access decisions denied, by action and reason",
		}, []string{"action", "reason"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandocs_artifacts_stored_total",
			Help: "Artifacts stored, by kind",
		}, []string{"kind"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loandocs_artifact_bytes_stored_total",
			Help: "Bytes of binary artifact payloads written to the blob store",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loandocs_collab_tokens_minted_total",
			Help: "Collaboration mint requests, by outcome",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		m.requests, m.duration, m.denied, m.artifacts, m.bytes, m.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Denied implements access.Observer.
func (m *Metrics) Denied(a access.Action, r access.Reason) {
	m.denied.WithLabelValues(string(a), string(r)).Inc()
}

// ArtifactStored records a committed artifact.
func (m *Metrics) ArtifactStored(kind model.ArtifactKind, size int64) {
	m.artifacts.WithLabelValues(string(kind)).Inc()
	if size > 0 {
		m.bytes.Add(float64(size))
	}
}

// TokenMinted records a mint request; reused reports whether a live token was returned.
func (m *Metrics) TokenMinted(reused bool) {
	outcome := "created"
	if reused {
		outcome = "reused"
	}
	m.tokens.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
