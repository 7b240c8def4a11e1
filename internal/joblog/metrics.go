package joblog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "electwatch"

// Metrics are the Prometheus collectors updated by the job logger.
type Metrics struct {
	JobsTotal   *prometheus.CounterVec
	ItemsTotal  *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the sync job metrics on reg, or on the
// default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_jobs_total",
				Help:      "Sync jobs finished, by source and terminal status",
			},
			[]string{"source", "status"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_items_total",
				Help:      "Items handled by sync jobs, by source and outcome",
			},
			[]string{"source", "kind"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "sync_job_duration_seconds",
				Help:      "Wall time of sync jobs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
			},
			[]string{"source"},
		),
	}
}
