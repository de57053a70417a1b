package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusinessMetrics tracks pipeline-level outcomes
type BusinessMetrics struct {
	LinksResolvedTotal          *prometheus.CounterVec
	EnrichmentRunsTotal         *prometheus.CounterVec
	EnrichmentStepFailuresTotal *prometheus.CounterVec
	TagsCreatedTotal            prometheus.Counter
}

// New creates and registers the business metrics on the given registerer
func New(reg prometheus.Registerer) *BusinessMetrics {
	m := &BusinessMetrics{
		LinksResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkkeeper_links_resolved_total",
			Help: "Link resolutions by outcome (created, existing, cached)",
		}, []string{"outcome"}),
		EnrichmentRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkkeeper_enrichment_runs_total",
			Help: "Enrichment pipeline runs by final status",
		}, []string{"status"}),
		EnrichmentStepFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkkeeper_enrichment_step_failures_total",
			Help: "Failures of individual enrichment steps",
		}, []string{"step"}),
		TagsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkkeeper_tags_created_total",
			Help: "New tag rows created by reconciliation",
		}),
	}

	reg.MustRegister(
		m.LinksResolvedTotal,
		m.EnrichmentRunsTotal,
		m.EnrichmentStepFailuresTotal,
		m.TagsCreatedTotal,
	)

	return m
}
