// Package metrics provides Prometheus metrics export for fleetconf runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Registry holds all fleetconf metrics.
type Registry struct {
	reg *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	deviceDuration  *prometheus.HistogramVec
	snapshotBytes   prometheus.Counter
	snapshotsTotal  *prometheus.CounterVec
	rollbacksTotal  *prometheus.CounterVec
	batchesLaunched prometheus.Counter
	haltsTotal      *prometheus.CounterVec
}

// NewRegistry creates a registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "runs_total",
		Help:      "Count of fleet runs by operation and result",
	}, []string{"operation", "result"})

	r.outcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "device_outcomes_total",
		Help:      "Count of per-device terminal outcomes",
	}, []string{"status"})

	r.deviceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetconf",
		Name:      "device_duration_seconds",
		Help:      "Wall time distribution of per-device execution",
		Buckets:   durationBuckets,
	}, []string{"status"})

	r.snapshotBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "snapshot_bytes_total",
		Help:      "Total bytes of configuration snapshots written",
	})

	r.snapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "snapshots_total",
		Help:      "Count of backup snapshots by result",
	}, []string{"result"})

	r.rollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "rollbacks_total",
		Help:      "Count of rollback attempts by result",
	}, []string{"result"})

	r.batchesLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "batches_launched_total",
		Help:      "Count of device batches launched",
	})

	r.haltsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetconf",
		Name:      "run_halts_total",
		Help:      "Count of early run halts by reason",
	}, []string{"reason"})

	r.reg.MustRegister(
		r.runsTotal, r.outcomesTotal, r.deviceDuration,
		r.snapshotBytes, r.snapshotsTotal, r.rollbacksTotal,
		r.batchesLaunched, r.haltsTotal,
	)
	return r
}

// RecordRun records a completed fleet run.
func (r *Registry) RecordRun(operation string, halted bool) {
	result := "completed"
	if halted {
		result = "halted"
	}
	r.runsTotal.WithLabelValues(operation, result).Inc()
}

// RecordOutcome records one device's terminal outcome.
func (r *Registry) RecordOutcome(status string, duration time.Duration) {
	r.outcomesTotal.WithLabelValues(status).Inc()
	r.deviceDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSnapshot records a backup attempt.
func (r *Registry) RecordSnapshot(success bool, sizeBytes int64) {
	if success {
		r.snapshotsTotal.WithLabelValues("ok").Inc()
		r.snapshotBytes.Add(float64(sizeBytes))
		return
	}
	r.snapshotsTotal.WithLabelValues("error").Inc()
}

// RecordRollback records a rollback attempt.
func (r *Registry) RecordRollback(success bool) {
	if success {
		r.rollbacksTotal.WithLabelValues("ok").Inc()
		return
	}
	r.rollbacksTotal.WithLabelValues("failed").Inc()
}

// RecordBatch records one launched batch.
func (r *Registry) RecordBatch() {
	r.batchesLaunched.Inc()
}

// RecordHalt records an early halt.
func (r *Registry) RecordHalt(reason string) {
	r.haltsTotal.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the server fails. Intended to be
// run in a goroutine for the duration of a long fleet run.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return http.ListenAndServe(addr, mux)
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
