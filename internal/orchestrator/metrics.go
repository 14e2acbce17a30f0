package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks run throughput. A nil *Metrics records nothing.
type Metrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

// NewMetrics creates the run metrics and registers them with reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_runs_submitted_total",
			Help: "Runs accepted by the orchestrator.",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_runs_finished_total",
			Help: "Runs that reached a terminal status.",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadfinder_run_duration_seconds",
			Help:    "Wall time from run start to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadfinder_runs_in_flight",
			Help: "Runs currently executing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.finished, m.duration, m.inFlight)
	}
	return m
}

func (m *Metrics) runSubmitted(kind string) {
	if m != nil {
		m.submitted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) runFinished(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.finished.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(seconds)
}
