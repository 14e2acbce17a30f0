package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Ingest outcomes.
const (
	OutcomeCreated = "created"
	OutcomeMerged  = "merged"
	OutcomeSkipped = "skipped"
)

// Metrics counts ingested candidates by source and outcome. A nil *Metrics
// records nothing.
type Metrics struct {
	ingested *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadfinder_leads_ingested_total",
			Help: "Candidates consumed by the ingestion pipeline, by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.ingested)
	}
	return m
}

func (m *Metrics) observe(source, outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source, outcome).Inc()
}
