// Package metrics exposes Prometheus instruments for the ledger and its
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "staking"

// Metrics owns a private registry so several instances (tests, embedded
// servers) never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ledgerOps    *prometheus.CounterVec
	httpRequests *prometheus.HistogramVec
	archiveRuns  *prometheus.CounterVec
}

// New registers the instruments plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_runs_total",
			Help:      "Archive runs by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.ledgerOps,
		m.httpRequests,
		m.archiveRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveLedgerOp counts one ledger mutation. outcome is "ok" or the
// stable error code of the rejection.
func (m *Metrics) ObserveLedgerOp(op, outcome string) {
	m.ledgerOps.WithLabelValues(op, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveArchiveRun counts one archive run.
func (m *Metrics) ObserveArchiveRun(outcome string) {
	m.archiveRuns.WithLabelValues(outcome).Inc()
}

// RegisterBook exposes live ledger totals as gauges read at scrape time.
func (m *Metrics) RegisterBook(open func() float64, locked func() float64) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Positions currently open.",
		}, open),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_principal_wei",
			Help:      "Principal held by open positions, in wei (float approximation).",
		}, locked),
	)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
