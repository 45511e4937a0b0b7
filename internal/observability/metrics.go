package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	storeOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds_form",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Record store operations grouped by backend, operation and result.",
	}, []string{"backend", "op", "result"})

	storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mds_form",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Latency of record store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "op"})

	statusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mds_form",
		Subsystem: "lifecycle",
		Name:      "status_transitions_total",
		Help:      "Activity status transitions applied by the lifecycle service.",
	}, []string{"from", "to"})

	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mds_form",
		Subsystem: "store",
		Name:      "last_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful record write.",
	})
)

func init() {
	prometheus.MustRegister(storeOperations, storeLatency, statusTransitions, lastWriteGauge)
}

// Store operation results.
const (
	ResultOK      = "ok"
	ResultMissing = "missing"
	ResultError   = "error"
)

// RecordStoreOperation counts one store call and observes its latency.
func RecordStoreOperation(backend, op, result string, took time.Duration) {
	storeOperations.WithLabelValues(backend, op, result).Inc()
	storeLatency.WithLabelValues(backend, op).Observe(took.Seconds())
}

// RecordWrite updates the write watermark gauge.
func RecordWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastWriteGauge.Set(float64(ts.Unix()))
}

// RecordTransition counts an applied status change.
func RecordTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}
