// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - Business metrics (articles, sources, feed crawls)
//   - Content extraction metrics
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "catchup-feed/internal/observability/metrics"
//
//	func checkSource(sourceID int64) {
//	    start := time.Now()
//	    // ... crawl the feed ...
//	    found, inserted, duplicated := 10, 8, 2
//
//	    metrics.RecordFeedCrawl(sourceID, time.Since(start), int64(found), int64(inserted), int64(duplicated))
//	}
package metrics
