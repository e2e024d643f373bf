package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the submission core.
type Metrics struct {
	NormalizationsTotal  *prometheus.CounterVec
	SubmissionsTotal     *prometheus.CounterVec
	SchedulerRunsTotal   prometheus.Counter
	SchedulerBatchSize   prometheus.Histogram
	RecordFailuresTotal  prometheus.Counter
	GatewayRequestTiming prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		NormalizationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "staygate_keystore_normalizations_total",
			Help: "Total keystore normalizations by outcome",
		}, []string{"outcome"}),
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "staygate_submissions_total",
			Help: "Total stay-report submissions by outcome",
		}, []string{"outcome"}),
		SchedulerRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "staygate_scheduler_runs_total",
			Help: "Total retry scheduler runs",
		}),
		SchedulerBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "staygate_scheduler_batch_size",
			Help:    "Records selected per scheduler run",
			Buckets: prometheus.LinearBuckets(0, 10, 6),
		}),
		RecordFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "staygate_scheduler_record_failures_total",
			Help: "Total per-record submission failures inside scheduler batches",
		}),
		GatewayRequestTiming: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "staygate_gateway_request_seconds",
			Help:    "Latency of government gateway validate calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncNormalizations(outcome string) {
	m.NormalizationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSubmissions(outcome string) {
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}
