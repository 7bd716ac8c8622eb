// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business metrics track application-specific operations
var (
	// ArticlesTotal tracks total number of articles in database
	ArticlesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "articles_total",
			Help: "Total number of articles in the database",
		},
	)

	// SourcesTotal tracks total number of sources in database
	SourcesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sources_total",
			Help: "Total number of sources in the database",
		},
	)

	// ArticlesFetchedTotal counts articles fetched from each source
	ArticlesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_fetched_total",
			Help: "Total number of articles fetched from sources",
		},
		[]string{"source", "source_id"},
	)

	// FeedCrawlDuration measures time to crawl a feed source
	FeedCrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_crawl_duration_seconds",
			Help:    "Time taken to crawl a feed source",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"source_id"},
	)

	// FeedCrawlErrors counts errors during feed crawling
	FeedCrawlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_crawl_errors_total",
			Help: "Total number of feed crawl errors",
		},
		[]string{"source_id", "error_type"},
	)

	// ContentFetchAttemptsTotal counts content fetch attempts by result
	ContentFetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_fetch_attempts_total",
			Help: "Total number of content fetch attempts",
		},
		[]string{"result"}, // result: success, failure
	)

	// ContentFetchDuration measures time to fetch article content
	ContentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_fetch_duration_seconds",
			Help:    "Time taken to fetch article content",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
	)

	// ContentFetchSize measures fetched content size in bytes
	ContentFetchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "content_fetch_size_bytes",
			Help: "Fetched article content size in bytes",
			Buckets: []float64{
				100, 200, 400, 800, 1600, 3200, 6400, 12800,
				25600, 51200, 102400, 204800, 409600, 819200,
				1638400, 3276800, 6553600, 10485760, // up to 10MB
			},
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
