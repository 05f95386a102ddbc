// Package metrics holds the Prometheus collectors shared by the scanner and
// web services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scanwatch"

var (
	FilesReady = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_ready_total",
			Help:      "Recordings that passed the stability check",
		},
	)

	FilesAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_abandoned_total",
			Help:      "Recordings released after exceeding the stability wait",
		},
	)

	StubsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stubs_total",
			Help:      "Stub insert attempts by outcome",
		},
		[]string{"outcome"}, // "created", "duplicate", "cached", "error"
	)

	StageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Enrichment stage completions by outcome",
		},
		[]string{"stage", "outcome"}, // "ok", "empty", "failed", "skipped"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of enrichment stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"stage"},
	)

	EnrichQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrich_queue_depth",
			Help:      "Incident ids waiting for an enrichment worker",
		},
	)

	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Outbound calls to transcription, LLM and geo services",
		},
		[]string{"service", "status"},
	)

	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Connected change feed subscribers",
		},
	)

	FeedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_batches_total",
			Help:      "Batches published to the change feed",
		},
		[]string{"kind"}, // "incidents", "updates", "heartbeat"
	)

	FeedLagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_lagged_total",
			Help:      "Batches dropped for a slow subscriber",
		},
	)

	Rollovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "Day bucket rollovers",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
