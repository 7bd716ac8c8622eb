package repository

import (
	"context"
	"time"

	"catchup-feed/internal/domain/entity"
)

// SourceRepository persists the source catalog. Config-sync (internal/usecase/source)
// owns Create/Update/Delete; the rest of the pipeline only reads.
type SourceRepository interface {
	Get(ctx context.Context, id int64) (*entity.Source, error)
	GetByIdentifier(ctx context.Context, identifier string) (*entity.Source, error)
	List(ctx context.Context) ([]*entity.Source, error)
	ListActive(ctx context.Context) ([]*entity.Source, error)
	Create(ctx context.Context, source *entity.Source) error
	Update(ctx context.Context, source *entity.Source) error
	Delete(ctx context.Context, id int64) error
}

// SourceStateRepository persists the mutable 1:1 scheduling/fetch state
// the Scheduler and Fetcher own per entity.SourceState's field split.
type SourceStateRepository interface {
	Get(ctx context.Context, sourceID int64) (*entity.SourceState, error)
	// DueForCheck returns source IDs whose next_run_at has elapsed, ordered
	// by source weight descending then next_run_at ascending (due_sources).
	DueForCheck(ctx context.Context, now time.Time, limit int) ([]int64, error)
	Upsert(ctx context.Context, state *entity.SourceState) error
}

// SourceCheckRepository appends one audit row per fetch attempt.
type SourceCheckRepository interface {
	Create(ctx context.Context, check *entity.SourceCheck) (int64, error)
	Finish(ctx context.Context, check *entity.SourceCheck) error
	ListRecent(ctx context.Context, sourceID int64, limit int) ([]*entity.SourceCheck, error)
	// DeleteOlderThan prunes SourceCheck rows past the retention window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// URLTrackingRepository records every URL a source has ever surfaced, so
// discovery crawling doesn't re-walk known pages.
type URLTrackingRepository interface {
	Get(ctx context.Context, sourceID int64, canonicalURL string) (*entity.URLTracking, error)
	Upsert(ctx context.Context, tracking *entity.URLTracking) error
}

// SourceLeaseRepository implements the claim/lease protocol that makes
// check_source safe to run from more than one worker process.
type SourceLeaseRepository interface {
	// TryAcquire inserts a lease row iff none exists or the existing one is
	// stale; returns false without error when another holder owns it.
	TryAcquire(ctx context.Context, lease *entity.SourceLease, staleAfter time.Duration, now time.Time) (bool, error)
	Release(ctx context.Context, sourceID int64, holder string) error
}

// WorkflowTriggerRepository appends the outbox rows the notify usecase
// turns into queue messages for the (out-of-scope) workflow engine.
type WorkflowTriggerRepository interface {
	Create(ctx context.Context, trigger *entity.WorkflowTrigger) error
	ListUnsent(ctx context.Context, limit int) ([]*entity.WorkflowTrigger, error)
}
