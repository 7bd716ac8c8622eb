package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type SourceCheckRepo struct{ db dbtx }

func NewSourceCheckRepo(db dbtx) repository.SourceCheckRepository {
	return &SourceCheckRepo{db: db}
}

func (repo *SourceCheckRepo) Create(ctx context.Context, check *entity.SourceCheck) (int64, error) {
	const query = `
INSERT INTO source_checks (source_id, started_at, http_status, bytes, articles_seen, articles_new, error_kind, error_detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	var id int64
	err := repo.db.QueryRowContext(ctx, query,
		check.SourceID, check.StartedAt, nullableInt(check.HTTPStatus), check.Bytes,
		check.ArticlesSeen, check.ArticlesNew, nullable(check.ErrorKind), nullable(check.ErrorDetail),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("Create: %w", err)
	}
	return id, nil
}

func (repo *SourceCheckRepo) Finish(ctx context.Context, check *entity.SourceCheck) error {
	const query = `
UPDATE source_checks SET
       finished_at = $1, http_status = $2, bytes = $3, articles_seen = $4,
       articles_new = $5, error_kind = $6, error_detail = $7
WHERE id = $8`

	res, err := repo.db.ExecContext(ctx, query,
		check.FinishedAt, nullableInt(check.HTTPStatus), check.Bytes, check.ArticlesSeen,
		check.ArticlesNew, nullable(check.ErrorKind), nullable(check.ErrorDetail), check.ID,
	)
	if err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Finish: no rows affected")
	}
	return nil
}

func (repo *SourceCheckRepo) ListRecent(ctx context.Context, sourceID int64, limit int) ([]*entity.SourceCheck, error) {
	const query = `
SELECT id, source_id, started_at, finished_at, http_status, bytes, articles_seen, articles_new, error_kind, error_detail
FROM source_checks WHERE source_id = $1 ORDER BY started_at DESC LIMIT $2`

	rows, err := repo.db.QueryContext(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	checks := make([]*entity.SourceCheck, 0, limit)
	for rows.Next() {
		var c entity.SourceCheck
		var httpStatus sql.NullInt64
		var errorKind, errorDetail sql.NullString
		if err := rows.Scan(&c.ID, &c.SourceID, &c.StartedAt, &c.FinishedAt, &httpStatus,
			&c.Bytes, &c.ArticlesSeen, &c.ArticlesNew, &errorKind, &errorDetail); err != nil {
			return nil, fmt.Errorf("ListRecent: scan: %w", err)
		}
		c.HTTPStatus = int(httpStatus.Int64)
		c.ErrorKind = errorKind.String
		c.ErrorDetail = errorDetail.String
		checks = append(checks, &c)
	}
	return checks, rows.Err()
}

func (repo *SourceCheckRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM source_checks WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: rows affected: %w", err)
	}
	return n, nil
}

func nullableInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
