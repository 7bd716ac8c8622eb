// Package process implements the Processor: the validate -> dedup ->
// score -> persist pipeline every fetched candidate passes through before
// it becomes a stored Article.
package process

import (
	"time"

	"catchup-feed/internal/domain/entity"
)

// Candidate is a single fetched item awaiting processing, produced by any
// of the three extraction tiers in internal/usecase/fetch.
type Candidate struct {
	OriginalURL string
	Title       string
	Content     string // cleaned text, post internal/content/clean.CleanHTML
	RawHTML     string
	PublishedAt *time.Time
	Author      string
	Tags        []string
	Language    string
}

// Outcome classifies how a Candidate was disposed of.
type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// DuplicateKind distinguishes an exact content-hash match from a
// near-duplicate found via SimHash band lookup.
type DuplicateKind string

const (
	DuplicateExact DuplicateKind = "exact"
	DuplicateNear  DuplicateKind = "near"
)

// Result reports what happened to a Candidate.
type Result struct {
	Outcome       Outcome
	Article       *entity.Article // set when Outcome == OutcomeStored
	DuplicateKind DuplicateKind   // set when Outcome == OutcomeDuplicate
	DuplicateOf   int64           // canonical article ID, when OutcomeDuplicate
	RejectReason  string          // set when Outcome == OutcomeRejected
	Triggered     bool            // true if a workflow trigger was enqueued
}
