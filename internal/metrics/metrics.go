// Package metrics exposes prometheus collectors for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncd_events_applied_total",
		Help: "Events durably applied downstream, per consumer.",
	}, []string{"consumer"})

	EventsDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncd_events_dead_lettered_total",
		Help: "Events moved to the dead-letter state, per consumer.",
	}, []string{"consumer"})

	ApplyRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncd_apply_retries_total",
		Help: "Transient apply failures that were retried, per consumer.",
	}, []string{"consumer"})

	PendingEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "syncd_pending_events",
		Help: "Events not yet applied, per consumer. Updated on each poll.",
	}, []string{"consumer"})

	ApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncd_apply_duration_seconds",
		Help:    "Downstream apply latency, per consumer.",
		Buckets: prometheus.DefBuckets,
	}, []string{"consumer"})
)
