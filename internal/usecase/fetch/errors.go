package fetch

import "errors"

// Sentinel errors for the Fetcher/Orchestrator.
var (
	// ErrFeedFetchFailed indicates that fetching a feed from the source URL failed.
	ErrFeedFetchFailed = errors.New("failed to fetch feed from source")

	// ErrInvalidFeedFormat indicates that the feed content could not be parsed.
	ErrInvalidFeedFormat = errors.New("invalid feed format")

	// ErrSourceLeased indicates another worker currently holds the source's
	// check_source claim; the caller should skip this source this cycle.
	ErrSourceLeased = errors.New("source is currently leased by another worker")

	// ErrOutOfScope indicates a discovered URL failed the source's
	// scope.allow/deny/post_url_regex filters.
	ErrOutOfScope = errors.New("url out of source scope")
)
