// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration on the console API.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total console API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SnapshotPollDuration tracks upstream snapshot poll duration.
	SnapshotPollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_snapshot_poll_duration_seconds",
			Help:    "Snapshot poll round-trip duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// SnapshotPollsSkipped counts polls suppressed by an active deletion.
	SnapshotPollsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_snapshot_polls_skipped_total",
			Help: "Snapshot polls skipped while a deletion was in flight",
		},
	)

	// PatchesApplied counts normalized patches by operation and outcome.
	// The "duplicate" and "tombstoned" outcomes are the engine's two
	// correctness rails made observable.
	PatchesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_patches_applied_total",
			Help: "Normalized patches applied to the reconciliation store",
		},
		[]string{"op", "outcome"},
	)

	// PushEventsReceived counts push channel events by type.
	PushEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_push_events_received_total",
			Help: "Events received on the push channel",
		},
		[]string{"type"},
	)

	// PushEventsDropped counts malformed or self-echo push events.
	PushEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_push_events_dropped_total",
			Help: "Push events dropped before reaching the store",
		},
		[]string{"reason"},
	)

	// DeletionsTotal counts deletion attempts by outcome.
	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_deletions_total",
			Help: "Conversation deletion attempts",
		},
		[]string{"outcome"},
	)

	// ConversationsVisible tracks the size of the visible store.
	ConversationsVisible = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_conversations_visible",
			Help: "Conversations currently in the visible store",
		},
	)

	// PushConnected reports whether the push channel is up.
	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_push_connected",
			Help: "1 while the push channel websocket is connected",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordPoll records one snapshot poll attempt.
func RecordPoll(outcome string, duration float64) {
	SnapshotPollDuration.WithLabelValues(outcome).Observe(duration)
}
