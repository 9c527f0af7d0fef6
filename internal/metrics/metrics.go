// Package metrics exposes engine counters on the default prometheus
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts push events applied to the store, by kind.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deskchat_push_events_applied_total",
		Help: "Push events applied to the message store.",
	}, []string{"kind"})

	// DuplicatesSuppressed counts events that were no-ops on replay.
	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_push_duplicates_suppressed_total",
		Help: "Push events suppressed as duplicates or replays.",
	})

	// MalformedDropped counts push frames dropped during decoding.
	MalformedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_push_malformed_dropped_total",
		Help: "Malformed push frames dropped by the decoder.",
	})

	// SendsFailed counts message sends that settled to failed.
	SendsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_sends_failed_total",
		Help: "Message sends that settled to the failed state.",
	})

	// DeletesReconciled counts 404-on-delete local reconciliations.
	DeletesReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deskchat_deletes_reconciled_total",
		Help: "Deletes reconciled locally after the server reported the message already gone.",
	})
)
