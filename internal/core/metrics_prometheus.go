package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports ledger operation metrics to a Prometheus
// registry. It implements MetricsRecorder and AuditRecorder.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	mutations  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the ledger collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracechain",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tracechain",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"operation"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracechain",
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Rejected mutations by error kind.",
		}, []string{"operation", "kind"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracechain",
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Committed mutations by entity.",
		}, []string{"entity"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.rejections, r.mutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := string(AuditStatusError)
	if success {
		status = string(AuditStatusSuccess)
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Record implements AuditRecorder.
func (r *PrometheusRecorder) Record(_ context.Context, entry AuditEntry) {
	if entry.Status == AuditStatusError {
		r.rejections.WithLabelValues(entry.Operation, entry.Kind).Inc()
		return
	}
	r.mutations.WithLabelValues(string(entry.Entity)).Inc()
}
