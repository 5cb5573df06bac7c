package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the gateway's Prometheus instrumentation. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	upstream *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors on reg. The breaker feeds the
// open-circuit gauge.
func NewMetrics(reg prometheus.Registerer, breaker *CircuitBreaker) *Metrics {
	m := &Metrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_requests_total",
			Help: "Requests handled, by route, source dialect, and status code.",
		}, []string{"route", "dialect", "status"}),
		upstream: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "llm_router_upstream_attempts_total",
			Help: "Upstream attempts, by provider and outcome category.",
		}, []string{"provider", "category"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_router_request_duration_seconds",
			Help:    "Wall time of routed requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "llm_router_open_circuits",
		Help: "Candidates whose circuit is currently open.",
	}, func() float64 { return float64(breaker.OpenCount()) })
	return m
}

// ObserveRequest counts one handled request.
func (m *Metrics) ObserveRequest(route, dialect, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, dialect, status).Inc()
}

// ObserveUpstream counts one upstream attempt outcome.
func (m *Metrics) ObserveUpstream(provider, category string) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(provider, category).Inc()
}

// ObserveDuration records a routed request's wall time in seconds.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(route).Observe(seconds)
}
