package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type SourceStateRepo struct{ db dbtx }

func NewSourceStateRepo(db dbtx) repository.SourceStateRepository {
	return &SourceStateRepo{db: db}
}

func (repo *SourceStateRepo) Get(ctx context.Context, sourceID int64) (*entity.SourceState, error) {
	const query = `
SELECT source_id, last_checked_at, last_success_at, last_etag, last_modified,
       consecutive_failures, health, next_run_at
FROM source_states WHERE source_id = $1`

	var st entity.SourceState
	var lastETag, lastModified sql.NullString
	err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(
		&st.SourceID, &st.LastCheckedAt, &st.LastSuccessAt, &lastETag, &lastModified,
		&st.ConsecutiveFailures, &st.Health, &st.NextRunAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	st.LastETag = lastETag.String
	st.LastModified = lastModified.String
	return &st, nil
}

// DueForCheck returns source IDs scheduled to run at or before now, ordered
// healthy-first, then by source weight descending, then next_run_at
// ascending so high-priority sources are served first when the worker pool
// is saturated.
func (repo *SourceStateRepo) DueForCheck(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	const query = `
SELECT ss.source_id
FROM source_states ss
JOIN sources s ON s.id = ss.source_id
WHERE ss.next_run_at <= $1 AND s.active = TRUE AND ss.health != 'disabled_auto'
ORDER BY (ss.health = 'healthy') DESC, s.weight DESC, ss.next_run_at ASC
LIMIT $2`

	rows, err := repo.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("DueForCheck: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("DueForCheck: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *SourceStateRepo) Upsert(ctx context.Context, st *entity.SourceState) error {
	const query = `
INSERT INTO source_states (source_id, last_checked_at, last_success_at, last_etag,
       last_modified, consecutive_failures, health, next_run_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source_id) DO UPDATE SET
       last_checked_at = EXCLUDED.last_checked_at,
       last_success_at = EXCLUDED.last_success_at,
       last_etag = EXCLUDED.last_etag,
       last_modified = EXCLUDED.last_modified,
       consecutive_failures = EXCLUDED.consecutive_failures,
       health = EXCLUDED.health,
       next_run_at = EXCLUDED.next_run_at`

	_, err := repo.db.ExecContext(ctx, query,
		st.SourceID, st.LastCheckedAt, st.LastSuccessAt, nullable(st.LastETag),
		nullable(st.LastModified), st.ConsecutiveFailures, st.Health, st.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}
