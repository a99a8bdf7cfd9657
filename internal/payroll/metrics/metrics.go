// Package metrics holds the Prometheus instruments for the compliance
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered once at startup and shared by the pipeline and the
// authority client.
type Metrics struct {
	StageResults      *prometheus.CounterVec
	PipelineRuns      *prometheus.CounterVec
	AuthorityDuration prometheus.Histogram
}

// New creates and registers all pipeline metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a specific registerer; tests pass a fresh registry to
// avoid duplicate registration across cases.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nomina_pipeline_stage_results_total",
			Help: "Pipeline stage outcomes by stage name and result.",
		}, []string{"stage", "result"}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nomina_pipeline_runs_total",
			Help: "Completed pipeline runs by final result.",
		}, []string{"result"}),
		AuthorityDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nomina_authority_request_duration_seconds",
			Help:    "Wall time of authority SOAP calls, including retries.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

// ObserveStage records one stage outcome.
func (m *Metrics) ObserveStage(stage string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.StageResults.WithLabelValues(stage, result).Inc()
}

// ObserveRun records one finished pipeline run.
func (m *Metrics) ObserveRun(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.PipelineRuns.WithLabelValues(result).Inc()
}
