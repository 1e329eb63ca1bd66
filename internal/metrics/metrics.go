// Package metrics provides Prometheus metrics for amanrag.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "amanrag"

// Stage names used with StageDuration.
const (
	StageEmbed   = "embed"
	StageVector  = "vector_search"
	StageKeyword = "keyword_search"
	StageRerank  = "rerank"
)

// Metrics holds the collectors for the query path and the HTTP surface.
type Metrics struct {
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	CandidatesMerged   *prometheus.HistogramVec
	ItemsReturned      *prometheus.HistogramVec
	PaddedItemsTotal   *prometheus.CounterVec
	DegradedTotal      *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
	RateLimitedTotal   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of workspace queries",
			},
			[]string{"engine", "status"},
		),
		QueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End-to-end duration of workspace queries",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"engine"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of individual query stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"engine", "stage"},
		),
		CandidatesMerged: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "candidates_merged",
				Help:      "Unique candidates after merging vector and keyword results",
				Buckets:   []float64{0, 5, 10, 25, 50},
			},
			[]string{"engine"},
		),
		ItemsReturned: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "items_returned",
				Help:      "Items returned to the caller",
				Buckets:   []float64{0, 1, 3, 5, 10, 25, 50, 100},
			},
			[]string{"engine"},
		),
		PaddedItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "padded_items_total",
				Help:      "Items added by similarity backfill after threshold filtering",
			},
			[]string{"engine"},
		),
		DegradedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_queries_total",
				Help:      "Queries answered with one retrieval mode after the other failed",
			},
			[]string{"engine", "failed_source"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP API requests",
			},
			[]string{"route", "code"},
		),
		HTTPRequestSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
		),
	}
}

// ObserveStage records how long a stage took. Safe on a nil receiver.
func (m *Metrics) ObserveStage(engine, stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(engine, stage).Observe(time.Since(start).Seconds())
}

// ObserveQuery records the outcome of one query. Safe on a nil receiver.
func (m *Metrics) ObserveQuery(engine string, start time.Time, err error, items int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(engine, status).Inc()
	m.QueryDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
	if err == nil {
		m.ItemsReturned.WithLabelValues(engine).Observe(float64(items))
	}
}
