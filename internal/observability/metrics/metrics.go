package metrics

import "github.com/prometheus/client_golang/prometheus"

// IdentificationMetrics exposes counters/histograms for the person-resolution
// workflow. All observe methods are nil-safe so wiring them is optional in
// tests and tools.
type IdentificationMetrics struct {
	turnsTotal        *prometheus.CounterVec
	resolutionsTotal  *prometheus.CounterVec
	escalationsTotal  *prometheus.CounterVec
	corruptedTotal    prometheus.Counter
	registeredMatches prometheus.Histogram
	turnLatency       *prometheus.HistogramVec
}

func NewIdentificationMetrics(reg prometheus.Registerer) *IdentificationMetrics {
	m := &IdentificationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexofarma",
			Subsystem: "identification",
			Name:      "turns_total",
			Help:      "Identification turns processed per step and outcome",
		}, []string{"step", "outcome"}),
		resolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexofarma",
			Subsystem: "identification",
			Name:      "resolutions_total",
			Help:      "Successful identifications per auth level",
		}, []string{"auth_level"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexofarma",
			Subsystem: "identification",
			Name:      "escalations_total",
			Help:      "Identification hand-offs to human support per reason",
		}, []string{"reason"}),
		corruptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nexofarma",
			Subsystem: "identification",
			Name:      "corrupted_state_total",
			Help:      "Corrupted identification states detected and reset",
		}),
		registeredMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nexofarma",
			Subsystem: "identification",
			Name:      "registered_matches",
			Help:      "Registered persons found per initial phone lookup",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nexofarma",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of full turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal,
		m.resolutionsTotal,
		m.escalationsTotal,
		m.corruptedTotal,
		m.registeredMatches,
		m.turnLatency,
	)
	return m
}

func (m *IdentificationMetrics) ObserveTurn(step, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step, outcome).Inc()
}

func (m *IdentificationMetrics) ObserveResolution(authLevel string) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(authLevel).Inc()
}

func (m *IdentificationMetrics) ObserveEscalation(reason string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(reason).Inc()
}

func (m *IdentificationMetrics) ObserveCorruptedState() {
	if m == nil {
		return
	}
	m.corruptedTotal.Inc()
}

func (m *IdentificationMetrics) ObserveRegisteredMatches(count int) {
	if m == nil {
		return
	}
	m.registeredMatches.Observe(float64(count))
}

func (m *IdentificationMetrics) ObserveTurnLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(status).Observe(seconds)
}
