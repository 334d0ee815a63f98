package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BridgeMetrics counts what happens at the federation edge. A nil
// *BridgeMetrics is valid and records nothing.
type BridgeMetrics struct {
	SourceApiCalls   *prometheus.CounterVec
	LookupErrors     *prometheus.CounterVec
	CacheResults     *prometheus.CounterVec
	InboxActivities  *prometheus.CounterVec
	WebFingerResults *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *BridgeMetrics {
	m := &BridgeMetrics{
		SourceApiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdbridge_source_api_calls_total",
				Help: "Calls made to the source network API",
			},
			[]string{"endpoint", "status"},
		),
		LookupErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdbridge_lookup_errors_total",
				Help: "Collaborator failures surfaced as not found or unauthorized",
			},
			[]string{"component"},
		),
		CacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdbridge_cache_results_total",
				Help: "Lookup cache hits and misses",
			},
			[]string{"result"},
		),
		InboxActivities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdbridge_inbox_activities_total",
				Help: "Inbound activities by kind and response status",
			},
			[]string{"kind", "status"},
		),
		WebFingerResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdbridge_webfinger_results_total",
				Help: "WebFinger resolutions by outcome",
			},
			[]string{"outcome"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "birdbridge_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.SourceApiCalls,
		m.LookupErrors,
		m.CacheResults,
		m.InboxActivities,
		m.WebFingerResults,
		m.CircuitState,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *BridgeMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *BridgeMetrics) IncSourceApiCall(endpoint, status string) {
	if m == nil || m.SourceApiCalls == nil {
		return
	}
	m.SourceApiCalls.WithLabelValues(endpoint, status).Inc()
}

func (m *BridgeMetrics) IncLookupError(component string) {
	if m == nil || m.LookupErrors == nil {
		return
	}
	m.LookupErrors.WithLabelValues(component).Inc()
}

func (m *BridgeMetrics) IncCache(result string) {
	if m == nil || m.CacheResults == nil {
		return
	}
	m.CacheResults.WithLabelValues(result).Inc()
}

func (m *BridgeMetrics) IncInbox(kind string, status int) {
	if m == nil || m.InboxActivities == nil {
		return
	}
	m.InboxActivities.WithLabelValues(kind, http.StatusText(status)).Inc()
}

func (m *BridgeMetrics) IncWebFinger(outcome string) {
	if m == nil || m.WebFingerResults == nil {
		return
	}
	m.WebFingerResults.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) SetCircuitState(name string, state float64) {
	if m == nil || m.CircuitState == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(state)
}
