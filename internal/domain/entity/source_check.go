package entity

import "time"

// SourceCheck is an append-only audit record of one check_source attempt,
// written by the Fetcher for every attempt (success, partial, or failure).
type SourceCheck struct {
	ID           int64
	SourceID     int64
	StartedAt    time.Time
	FinishedAt   *time.Time
	HTTPStatus   int
	Bytes        int64
	ArticlesSeen int
	ArticlesNew  int
	ErrorKind    string // empty when the check succeeded cleanly
	ErrorDetail  string
}
