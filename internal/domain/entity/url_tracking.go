package entity

import "time"

// URLTracking prevents re-processing of known URLs during discovery and
// records the canonical-article alias for URLs that turned out to be
// near/exact duplicates of an article stored under a different URL.
type URLTracking struct {
	SourceID     int64
	CanonicalURL string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	ArticleID    *int64 // nil until an Article is persisted for this URL
	Suppressed   bool   // true for URLs deactivated after a 404/410
}
