package postgres

import (
	"context"
	"fmt"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type WorkflowTriggerRepo struct{ db dbtx }

func NewWorkflowTriggerRepo(db dbtx) repository.WorkflowTriggerRepository {
	return &WorkflowTriggerRepo{db: db}
}

func (repo *WorkflowTriggerRepo) Create(ctx context.Context, trigger *entity.WorkflowTrigger) error {
	const query = `
INSERT INTO workflow_triggers (article_id, reason, score, enqueued_at)
VALUES ($1, $2, $3, $4)`

	if _, err := repo.db.ExecContext(ctx, query, trigger.ArticleID, trigger.Reason, trigger.Score, trigger.EnqueuedAt); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *WorkflowTriggerRepo) ListUnsent(ctx context.Context, limit int) ([]*entity.WorkflowTrigger, error) {
	const query = `
SELECT article_id, reason, score, enqueued_at
FROM workflow_triggers ORDER BY enqueued_at ASC LIMIT $1`

	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListUnsent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	triggers := make([]*entity.WorkflowTrigger, 0, limit)
	for rows.Next() {
		var t entity.WorkflowTrigger
		if err := rows.Scan(&t.ArticleID, &t.Reason, &t.Score, &t.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("ListUnsent: scan: %w", err)
		}
		triggers = append(triggers, &t)
	}
	return triggers, rows.Err()
}
