package postgres

import (
	"context"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type SourceLeaseRepo struct{ db dbtx }

func NewSourceLeaseRepo(db dbtx) repository.SourceLeaseRepository {
	return &SourceLeaseRepo{db: db}
}

// TryAcquire inserts the lease row, or steals it when the existing holder's
// claim is older than staleAfter. A concurrent acquisition attempt from a
// second worker simply affects zero rows and returns false, never an error.
func (repo *SourceLeaseRepo) TryAcquire(ctx context.Context, lease *entity.SourceLease, staleAfter time.Duration, now time.Time) (bool, error) {
	const query = `
INSERT INTO source_leases (source_id, holder, acquired_at)
VALUES ($1, $2, $3)
ON CONFLICT (source_id) DO UPDATE SET
       holder = EXCLUDED.holder,
       acquired_at = EXCLUDED.acquired_at
WHERE source_leases.acquired_at < $4`

	staleCutoff := now.Add(-staleAfter)
	res, err := repo.db.ExecContext(ctx, query, lease.SourceID, lease.Holder, lease.AcquiredAt, staleCutoff)
	if err != nil {
		return false, fmt.Errorf("TryAcquire: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TryAcquire: rows affected: %w", err)
	}
	return n > 0, nil
}

func (repo *SourceLeaseRepo) Release(ctx context.Context, sourceID int64, holder string) error {
	const query = `DELETE FROM source_leases WHERE source_id = $1 AND holder = $2`
	if _, err := repo.db.ExecContext(ctx, query, sourceID, holder); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}
