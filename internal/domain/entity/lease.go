package entity

import "time"

// SourceLease is the durable claim/lease record that replaces in-memory
// per-source locks (re-architecture note: locks must survive restarts).
// A conditional insert acquires the lease; a claim older than StaleAfter is
// considered abandoned and may be stolen.
type SourceLease struct {
	SourceID   int64
	Holder     string // opaque worker/run identifier, typically "<hostname>:<pid>"
	AcquiredAt time.Time
}

// StaleAfter is the age at which an unreleased lease is considered
// abandoned and eligible for reclaim (spec §4.F: "stuck claims > 5 min").
const StaleAfter = 5 * time.Minute

// IsStale reports whether the lease is old enough to be reclaimed.
func (l *SourceLease) IsStale(now time.Time) bool {
	return now.Sub(l.AcquiredAt) > StaleAfter
}
