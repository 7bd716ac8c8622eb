package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/repository"
)

const articleColumns = `id, source_id, canonical_url, original_url, title, content, raw_html,
       published_at, discovered_at, author, tags, language, content_hash, simhash,
       quality_score, threat_hunting_score, metadata`

type ArticleRepo struct{ db dbtx }

func NewArticleRepo(db dbtx) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

func scanArticle(scanner interface{ Scan(...any) error }) (*entity.Article, error) {
	var a entity.Article
	var rawHTML, author, language sql.NullString
	var metadataJSON []byte

	if err := scanner.Scan(
		&a.ID, &a.SourceID, &a.CanonicalURL, &a.OriginalURL, &a.Title, &a.Content, &rawHTML,
		&a.PublishedAt, &a.DiscoveredAt, &author, pq.Array(&a.Tags), &language,
		&a.ContentHash, &a.SimHash, &a.QualityScore, &a.ThreatHuntingScore, &metadataJSON,
	); err != nil {
		return nil, err
	}

	a.RawHTML = rawHTML.String
	a.Author = author.String
	a.Language = language.String

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &a, nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE id = $1`, articleColumns)
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetByContentHash(ctx context.Context, sourceID int64, contentHash string) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE source_id = $1 AND content_hash = $2`, articleColumns)
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, sourceID, contentHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByContentHash: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) GetByCanonicalURL(ctx context.Context, sourceID int64, canonicalURL string) (*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE source_id = $1 AND canonical_url = $2`, articleColumns)
	article, err := scanArticle(repo.db.QueryRowContext(ctx, query, sourceID, canonicalURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByCanonicalURL: %w", err)
	}
	return article, nil
}

func (repo *ArticleRepo) ListBySource(ctx context.Context, sourceID int64, limit int) ([]*entity.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE source_id = $1 ORDER BY published_at DESC NULLS LAST LIMIT $2`, articleColumns)
	rows, err := repo.db.QueryContext(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListBySource: %w", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBySource: scan: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func (repo *ArticleRepo) CountBySource(ctx context.Context, sourceID int64) (int64, error) {
	var count int64
	const query = `SELECT COUNT(*) FROM articles WHERE source_id = $1`
	if err := repo.db.QueryRowContext(ctx, query, sourceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("CountBySource: %w", err)
	}
	return count, nil
}

func (repo *ArticleRepo) Create(ctx context.Context, a *entity.Article) error {
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("Create: marshal metadata: %w", err)
	}

	const query = `
INSERT INTO articles (source_id, canonical_url, original_url, title, content, raw_html,
       published_at, discovered_at, author, tags, language, content_hash, simhash,
       quality_score, threat_hunting_score, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		a.SourceID, a.CanonicalURL, a.OriginalURL, a.Title, a.Content, nullable(a.RawHTML),
		a.PublishedAt, a.DiscoveredAt, nullable(a.Author), pq.Array(a.Tags), nullable(a.Language),
		a.ContentHash, a.SimHash, a.QualityScore, a.ThreatHuntingScore, metadataJSON,
	).Scan(&a.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return taskerr.Wrap(taskerr.KindStorageConflict, "article violates a unique constraint", err)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) Update(ctx context.Context, a *entity.Article) error {
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("Update: marshal metadata: %w", err)
	}

	const query = `
UPDATE articles SET
       canonical_url = $1, original_url = $2, title = $3, content = $4, raw_html = $5,
       published_at = $6, author = $7, tags = $8, language = $9, content_hash = $10,
       simhash = $11, quality_score = $12, threat_hunting_score = $13, metadata = $14
WHERE id = $15`
	res, err := repo.db.ExecContext(ctx, query,
		a.CanonicalURL, a.OriginalURL, a.Title, a.Content, nullable(a.RawHTML),
		a.PublishedAt, nullable(a.Author), pq.Array(a.Tags), nullable(a.Language), a.ContentHash,
		a.SimHash, a.QualityScore, a.ThreatHuntingScore, metadataJSON,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) Delete(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func (repo *ArticleRepo) ExistsByCanonicalURL(ctx context.Context, sourceID int64, canonicalURL string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM articles WHERE source_id = $1 AND canonical_url = $2)`
	if err := repo.db.QueryRowContext(ctx, query, sourceID, canonicalURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByCanonicalURL: %w", err)
	}
	return exists, nil
}
