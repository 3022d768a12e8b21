// Package obsv holds the pipeline's Prometheus metrics and HTTP exposition
// server, adapted from the ingestor's metrics package to the copyright
// pipeline's own counters and stages.
package obsv

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RevisionsStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revisions_streamed_total",
			Help: "Revisions received from the recent-changes stream",
		},
		[]string{"domain"},
	)

	RevisionsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revisions_filtered_total",
			Help: "Revisions dropped by the five-filter acceptance check",
		},
		[]string{"domain", "reason"},
	)

	RevisionsAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revisions_accepted_total",
			Help: "Revisions accepted and published to Kafka",
		},
		[]string{"domain"},
	)

	SSEReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_reconnects_total",
			Help: "EventStreams reconnections",
		},
		[]string{},
	)

	StoredDiffsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stored_diffs_total",
			Help: "Diffs written by the ingest consumer",
		},
		[]string{"domain"},
	)

	DiffsCheckedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diffs_checked_total",
			Help: "Diffs run through the diff extractor",
		},
		[]string{"result"}, // submitted, skipped, skipped_no_sources
	)

	SubmissionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_created_total",
			Help: "Similarity-service submissions created",
		},
		[]string{},
	)

	ReportsReadyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_ready_total",
			Help: "Similarity reports that reached READY status",
		},
		[]string{},
	)

	PageTriageSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_triage_submitted_total",
			Help: "Revisions submitted to the page-triage queue",
		},
		[]string{"domain"},
	)

	IndexErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_errors_total",
			Help: "Elasticsearch indexing failures",
		},
		[]string{},
	)

	TCARequestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_request_errors_total",
			Help: "Similarity-service API call failures",
		},
		[]string{"operation"},
	)

	PendingDiffsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pending_diffs",
			Help: "Diffs currently awaiting a report, by status",
		},
		[]string{"status"},
	)

	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diff_check_duration_seconds",
			Help:    "Time spent running the diff extractor on one revision",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)

	TCARequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "similarity_request_duration_seconds",
			Help:    "Similarity-service API call duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers every pipeline metric with the default Prometheus
// registry. Call once at process start.
func Register() {
	prometheus.MustRegister(
		RevisionsStreamedTotal,
		RevisionsFilteredTotal,
		RevisionsAcceptedTotal,
		SSEReconnectsTotal,
		StoredDiffsTotal,
		DiffsCheckedTotal,
		SubmissionsCreatedTotal,
		ReportsReadyTotal,
		PageTriageSubmittedTotal,
		IndexErrorsTotal,
		TCARequestErrorsTotal,
		PendingDiffsGauge,
		CheckDuration,
		TCARequestDuration,
	)
}
