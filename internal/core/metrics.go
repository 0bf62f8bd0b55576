package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablestore_uploads_total",
			Help: "Uploads processed, by file kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	uploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablestore_upload_bytes",
			Help:    "Size of accepted uploads in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	reconcileJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablestore_reconcile_jobs_total",
			Help: "Row count reconciliation jobs, by outcome.",
		},
		[]string{"outcome"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablestore_reconcile_duration_seconds",
			Help:    "Time spent recounting rows of one file.",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconcileQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tablestore_reconcile_queue_depth",
			Help: "Reconciliation jobs waiting for a worker.",
		},
	)

	actorCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablestore_actor_cache_lookups_total",
			Help: "Actor cache lookups, by result.",
		},
		[]string{"result"},
	)
)
