package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	combinations *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	robust       prometheus.Histogram
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on reg; nil means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		combinations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgescan_combinations_total",
				Help: "Filter combinations evaluated by outcome",
			},
			[]string{"outcome"},
		),
		tasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgescan_tasks_total",
				Help: "Optimization tasks finished by terminal event",
			},
			[]string{"outcome"},
		),
		robust: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgescan_robust_signatures",
				Help:    "Robust signatures found per optimization",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgescan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgescan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

// RecordCombination counts one evaluated combination.
func (r *Recorder) RecordCombination(outcome string) {
	r.combinations.WithLabelValues(outcome).Inc()
}

// RecordTask counts one finished task.
func (r *Recorder) RecordTask(outcome string) {
	r.tasks.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordRobust(n int) {
	r.robust.Observe(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
