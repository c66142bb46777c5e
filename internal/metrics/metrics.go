package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the archive service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Fetches      *prometheus.CounterVec
	Installs     *prometheus.CounterVec
	Aggregations *prometheus.CounterVec
	AggDuration  *prometheus.HistogramVec
	SkippedNames prometheus.Counter
	registry     *prometheus.Registry
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_fetch_total",
				Help: "Fetch requests by variable and outcome",
			},
			[]string{"variable", "outcome"},
		),
		Installs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_install_total",
				Help: "Archive installs by variable and result",
			},
			[]string{"variable", "result"},
		),
		Aggregations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_aggregation_total",
				Help: "Window aggregations by product kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AggDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_aggregation_duration_seconds",
				Help:    "Window aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		SkippedNames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prism_listing_skipped_total",
				Help: "Remote listing entries skipped because their name did not parse",
			},
		),
		registry: registry,
	}
	registry.MustRegister(m.Fetches, m.Installs, m.Aggregations, m.AggDuration, m.SkippedNames)
	return m
}

// IncFetch counts one fetch outcome.
func (m *Metrics) IncFetch(variable, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(variable, outcome).Inc()
}

// IncInstall counts one install result (installed, unchanged, failed).
func (m *Metrics) IncInstall(variable, result string) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(variable, result).Inc()
}

// ObserveAggregation counts one aggregation and records its latency.
func (m *Metrics) ObserveAggregation(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Aggregations.WithLabelValues(kind, outcome).Inc()
	m.AggDuration.WithLabelValues(kind).Observe(seconds)
}

// AddSkipped counts unparseable listing entries.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SkippedNames.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
