// Package metrics exposes Prometheus instrumentation for the follow graph,
// the ingestion worker and the consistency auditor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FollowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follow_operations_total",
			Help: "Follow graph operations by outcome",
		},
		[]string{"op", "result"}, // result: ok, invalid, not_found, conflict, partial, transient
	)

	FollowRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follow_half_retries_total",
			Help: "Synchronous retries of a failed half of a follow mutation",
		},
		[]string{"op", "result"},
	)

	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "User-created events by outcome",
		},
		[]string{"result"}, // inserted, duplicate, malformed, failed
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_event_duration_seconds",
			Help:    "Time spent handling one user-created event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	AuditRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_repairs_total",
			Help: "Edges repaired by the consistency auditor",
		},
		[]string{"kind"}, // added, removed, tombstone
	)

	AuditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_repair_failures_total",
			Help: "Edge repairs that failed and were skipped",
		},
	)

	AuditPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_pass_duration_seconds",
			Help:    "Duration of a full consistency audit pass",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
