// Package entity defines the core domain entities and validation logic for
// the ingestion engine: sources, their scheduling state, and the canonical
// article records the Processor persists.
package entity

import "time"

// Article is the canonical ingested record. The Processor is the exclusive
// writer; downstream consumers (search, annotation, detection tooling, the
// out-of-scope workflow engine) read it.
type Article struct {
	ID                 int64
	SourceID           int64
	CanonicalURL       string // normalized, unique per source
	OriginalURL        string
	Title              string
	Content            string // cleaned text
	RawHTML            string // optional, capped
	PublishedAt        *time.Time
	DiscoveredAt       time.Time
	Author             string
	Tags               []string
	Language           string
	ContentHash        string // 64-char hex SHA-256
	SimHash            uint64
	QualityScore       float64 // 0..1
	ThreatHuntingScore int     // 0..100
	Metadata           map[string]any
}

// Metadata keys populated by internal/content/score: Metadata["quality"]
// holds a score.Quality and Metadata["threat_hunting"] holds a
// score.ThreatHunting, both stored for auditability and rescoring.
const (
	MetadataKeyQuality       = "quality"
	MetadataKeyThreatHunting = "threat_hunting"
)
