package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts query API calls by endpoint and outcome.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blaise_queries_total",
		Help: "Number of query API requests, labeled by endpoint and status",
	}, []string{"endpoint", "status"})

	// QueryDuration tracks end-to-end query latency per endpoint.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blaise_query_duration_seconds",
		Help:    "Query latency by endpoint",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"endpoint"})
)

var (
	// DatasetBuilds counts snapshot install attempts by outcome.
	DatasetBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blaise_dataset_builds_total",
		Help: "Number of dataset install attempts, labeled by status",
	}, []string{"status"})

	// DatasetBuildDuration tracks how long a full repository build takes.
	DatasetBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blaise_dataset_build_duration_seconds",
		Help:    "Wall-clock duration of successful dataset builds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// DatasetAgeSeconds mirrors the age of the live snapshot.
	DatasetAgeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blaise_dataset_age_seconds",
		Help: "Seconds since the last successful dataset install",
	})
)

var (
	DatasetStops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blaise_dataset_stops",
		Help: "Number of stops in the live snapshot",
	})

	DatasetTrips = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blaise_dataset_trips",
		Help: "Number of trips in the live snapshot",
	})

	DatasetRaptorRoutes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blaise_dataset_raptor_routes",
		Help: "Number of RAPTOR routes in the live snapshot",
	})
)
