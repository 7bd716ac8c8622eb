// Package fetch implements the Fetcher/Orchestrator: claiming a source,
// picking its extraction tier, dispatching to that tier's fetcher, and
// handing the resulting candidates to the Processor.
package fetch

import "time"

// ArticleCandidate is a single unprocessed item surfaced by any extraction
// tier, on its way to internal/usecase/process.Candidate.
type ArticleCandidate struct {
	Title         string
	URL           string
	Content       string
	RawHTML       string
	Author        string
	PublishedAt   *time.Time
	// NeedsFullText is set by Tier 1 when the feed body is under 400 chars,
	// signaling the Orchestrator should fetch the full page before handing
	// the candidate to the Processor.
	NeedsFullText bool
}

// FetchMeta carries the per-attempt transport facts the Orchestrator needs
// to update SourceState and the SourceCheck audit row: the response status,
// conditional-request validators for the next poll, and bytes transferred.
type FetchMeta struct {
	HTTPStatus   int
	ETag         string
	LastModified string
	BytesRead    int64
	// NotModified is true on a conditional-request 304: the Orchestrator
	// should treat this as a clean success with zero candidates.
	NotModified bool
	// SuppressedURLs lists detail-page URLs a tier fetched and found gone
	// (404/410). The Orchestrator deactivates each one in URLTracking so
	// discovery never retries it.
	SuppressedURLs []string
}
