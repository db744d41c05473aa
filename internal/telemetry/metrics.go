package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the daemon on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	fsOps        *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	relayLines   *prometheus.CounterVec
	serverState  *prometheus.GaugeVec
}

// NewMetrics creates a metrics collector with its own registry, including
// the standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fsOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siriusu_fs_operations_total",
			Help: "Filesystem operations served, by operation and error kind.",
		}, []string{"op", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siriusu_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		relayLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siriusu_bds_lines_total",
			Help: "Lines of server output relayed, by classified severity.",
		}, []string{"severity"}),
		serverState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "siriusu_bds_state",
			Help: "1 for the supervisor's current state, 0 otherwise.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fsOps,
		m.httpRequests,
		m.relayLines,
		m.serverState,
	)
	return m
}

// RecordFSOp counts one filesystem operation. result is "ok" or an error kind.
func (m *Metrics) RecordFSOp(op, result string) {
	if m == nil {
		return
	}
	m.fsOps.WithLabelValues(op, result).Inc()
}

// RelayLine counts one relayed line of server output.
func (m *Metrics) RelayLine(severity string) {
	if m == nil {
		return
	}
	m.relayLines.WithLabelValues(severity).Inc()
}

// SetServerState marks state as current and clears the others.
func (m *Metrics) SetServerState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.serverState.WithLabelValues(s).Set(v)
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler that serves Prometheus-format metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler counts requests passing through next by method and code.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.httpRequests, next)
}
