// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and the searcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage label values.
const (
	StageEmbed = "embed"
	StageStore = "store"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cache label values for search requests.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics holds the collectors. Create one per registry with New.
type Metrics struct {
	// ItemsSubmitted counts items accepted by Submit.
	ItemsSubmitted prometheus.Counter

	// ItemsProcessed counts finished stage attempts, labeled by stage and outcome.
	ItemsProcessed *prometheus.CounterVec

	// StageDuration measures a single embed or store call.
	// Buckets cover local stores (ms) up to remote embedding APIs (tens of seconds).
	StageDuration *prometheus.HistogramVec

	// QueueDepth tracks pending (enqueued but unacknowledged) items per stage.
	QueueDepth *prometheus.GaugeVec

	// SearchRequests counts searches, labeled by whether the query
	// embedding came from cache.
	SearchRequests *prometheus.CounterVec

	// IndexedVectors tracks the number of vectors in the search index.
	IndexedVectors prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ItemsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sentvec_items_submitted_total",
			Help: "Total number of items submitted to the pipeline",
		}),
		ItemsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentvec_items_processed_total",
				Help: "Total number of stage attempts by outcome",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentvec_stage_duration_seconds",
				Help:    "Duration of embed and store calls in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentvec_queue_pending",
				Help: "Items enqueued but not yet acknowledged",
			},
			[]string{"stage"},
		),
		SearchRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentvec_search_requests_total",
				Help: "Total number of search requests",
			},
			[]string{"cache"},
		),
		IndexedVectors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sentvec_indexed_vectors",
			Help: "Number of vectors in the search index",
		}),
	}
}
