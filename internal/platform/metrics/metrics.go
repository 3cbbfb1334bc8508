package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the control service.
// It also implements obsws.Observer.
type Metrics struct {
	registry             *prometheus.Registry
	httpRequestsTotal    *prometheus.CounterVec
	httpErrorsTotal      prometheus.Counter
	sessionsOpenedTotal  prometheus.Counter
	provisionedTotal     prometheus.Counter
	provisionFailedTotal prometheus.Counter
	sceneSwitchesTotal   prometheus.Counter
	activeSessions       prometheus.Gauge
	obsRequestsTotal     *prometheus.CounterVec
	obsRequestDuration   *prometheus.HistogramVec
	stateTransitions     *prometheus.CounterVec
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obsremote_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
		httpErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obsremote_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obsremote_sessions_opened_total",
			Help: "Total number of sessions that completed the handshake",
		}),
		provisionedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obsremote_provision_success_total",
			Help: "Total number of successful provisioning runs",
		}),
		provisionFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obsremote_provision_failures_total",
			Help: "Total number of aborted provisioning runs",
		}),
		sceneSwitchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obsremote_scene_switches_total",
			Help: "Total number of program scene changes requested",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obsremote_active_sessions",
			Help: "Number of identified sessions",
		}),
		obsRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obsremote_obs_requests_total",
			Help: "Control requests by type and outcome",
		}, []string{"request_type", "result"}),
		obsRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "obsremote_obs_request_duration_seconds",
			Help:    "Time from sending a control request to its completion",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"request_type"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obsremote_connection_state_transitions_total",
			Help: "Connection state changes by target state",
		}, []string{"state"}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpErrorsTotal,
		m.sessionsOpenedTotal,
		m.provisionedTotal,
		m.provisionFailedTotal,
		m.sceneSwitchesTotal,
		m.activeSessions,
		m.obsRequestsTotal,
		m.obsRequestDuration,
		m.stateTransitions,
	)
	return m
}

// ObserveHTTP records one served HTTP request. Statuses of 400 and above
// also count as errors.
func (m *Metrics) ObserveHTTP(route string, status int) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	if status >= 400 {
		m.httpErrorsTotal.Inc()
	}
}

// IncSessionsOpened increments the opened sessions counter.
func (m *Metrics) IncSessionsOpened() {
	m.sessionsOpenedTotal.Inc()
}

// IncProvisioned increments the successful provisioning counter.
func (m *Metrics) IncProvisioned() {
	m.provisionedTotal.Inc()
}

// IncProvisionFailures increments the failed provisioning counter.
func (m *Metrics) IncProvisionFailures() {
	m.provisionFailedTotal.Inc()
}

// IncSceneSwitches increments the scene switch counter.
func (m *Metrics) IncSceneSwitches() {
	m.sceneSwitchesTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RequestCompleted records one finished control request.
func (m *Metrics) RequestCompleted(requestType, result string, d time.Duration) {
	m.obsRequestsTotal.WithLabelValues(requestType, result).Inc()
	m.obsRequestDuration.WithLabelValues(requestType).Observe(d.Seconds())
}

// StateChanged records a connection state transition.
func (m *Metrics) StateChanged(state string) {
	m.stateTransitions.WithLabelValues(state).Inc()
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
