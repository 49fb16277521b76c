// Package metrics registers the Prometheus collectors for the pipeline and
// the feed server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimefeed_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crimefeed_run_duration_seconds",
		Help:    "Wall time of a full pipeline run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	RecordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimefeed_records_fetched_total",
		Help: "Records fetched per upstream source.",
	}, []string{"source"})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimefeed_fetch_failures_total",
		Help: "Failed source fetches per upstream source.",
	}, []string{"source"})

	ArchiveSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crimefeed_archive_records",
		Help: "Records in the merged archive after the latest run.",
	})

	AlertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimefeed_alerts_dispatched_total",
		Help: "Alert dispatch attempts by outcome.",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimefeed_http_requests_total",
		Help: "Feed server requests by path and status.",
	}, []string{"path", "status"})
)
