package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type URLTrackingRepo struct{ db dbtx }

func NewURLTrackingRepo(db dbtx) repository.URLTrackingRepository {
	return &URLTrackingRepo{db: db}
}

func (repo *URLTrackingRepo) Get(ctx context.Context, sourceID int64, canonicalURL string) (*entity.URLTracking, error) {
	const query = `
SELECT source_id, canonical_url, first_seen_at, last_seen_at, article_id, suppressed
FROM url_tracking WHERE source_id = $1 AND canonical_url = $2`

	var t entity.URLTracking
	var articleID sql.NullInt64
	err := repo.db.QueryRowContext(ctx, query, sourceID, canonicalURL).Scan(
		&t.SourceID, &t.CanonicalURL, &t.FirstSeenAt, &t.LastSeenAt, &articleID, &t.Suppressed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if articleID.Valid {
		t.ArticleID = &articleID.Int64
	}
	return &t, nil
}

func (repo *URLTrackingRepo) Upsert(ctx context.Context, t *entity.URLTracking) error {
	const query = `
INSERT INTO url_tracking (source_id, canonical_url, first_seen_at, last_seen_at, article_id, suppressed)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_id, canonical_url) DO UPDATE SET
       last_seen_at = EXCLUDED.last_seen_at,
       article_id = COALESCE(EXCLUDED.article_id, url_tracking.article_id),
       suppressed = EXCLUDED.suppressed`

	var articleID sql.NullInt64
	if t.ArticleID != nil {
		articleID = sql.NullInt64{Int64: *t.ArticleID, Valid: true}
	}

	_, err := repo.db.ExecContext(ctx, query,
		t.SourceID, t.CanonicalURL, t.FirstSeenAt, t.LastSeenAt, articleID, t.Suppressed,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}
