package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

const sourceColumns = `id, identifier, name, url, rss_url, tier, active, weight,
       check_frequency_seconds, rate_limit_per_minute, user_agent_override,
       http_timeout_seconds, max_articles, scope_allow, scope_deny,
       scope_post_url_regex, discovery_listing_urls, discovery_post_link_selector,
       discovery_max_pages, extract_hints, categories`

type SourceRepo struct{ db dbtx }

func NewSourceRepo(db dbtx) repository.SourceRepository {
	return &SourceRepo{db: db}
}

func scanSource(scanner interface{ Scan(...any) error }) (*entity.Source, error) {
	var s entity.Source
	var extractHintsJSON []byte
	var rssURL, userAgentOverride, scopePostURLRegex, discoveryPostLinkSelector sql.NullString

	if err := scanner.Scan(
		&s.ID, &s.Identifier, &s.Name, &s.URL, &rssURL, &s.Tier, &s.Active, &s.Weight,
		&s.CheckFrequencySeconds, &s.RateLimitPerMinute, &userAgentOverride,
		&s.HTTPTimeoutSeconds, &s.MaxArticles,
		pq.Array(&s.Scope.AllowHosts), pq.Array(&s.Scope.DenyHosts),
		&scopePostURLRegex,
		pq.Array(&s.DiscoveryHints.ListingURLs), &discoveryPostLinkSelector,
		&s.DiscoveryHints.MaxPages, &extractHintsJSON,
		pq.Array(&s.Categories),
	); err != nil {
		return nil, err
	}

	s.RSSURL = rssURL.String
	s.UserAgentOverride = userAgentOverride.String
	s.Scope.PostURLRegex = scopePostURLRegex.String
	s.DiscoveryHints.PostLinkSelector = discoveryPostLinkSelector.String

	if len(extractHintsJSON) > 0 {
		if err := json.Unmarshal(extractHintsJSON, &s.ExtractHints); err != nil {
			return nil, fmt.Errorf("unmarshal extract_hints: %w", err)
		}
	}
	return &s, nil
}

func (repo *SourceRepo) Get(ctx context.Context, id int64) (*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE id = $1`, sourceColumns)
	row := repo.db.QueryRowContext(ctx, query, id)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) GetByIdentifier(ctx context.Context, identifier string) (*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE identifier = $1`, sourceColumns)
	row := repo.db.QueryRowContext(ctx, query, identifier)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByIdentifier: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) List(ctx context.Context) ([]*entity.Source, error) {
	return repo.query(ctx, fmt.Sprintf(`SELECT %s FROM sources ORDER BY id ASC`, sourceColumns))
}

func (repo *SourceRepo) ListActive(ctx context.Context) ([]*entity.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE active = TRUE ORDER BY id ASC`, sourceColumns)
	return repo.query(ctx, query)
}

func (repo *SourceRepo) query(ctx context.Context, query string, args ...any) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (repo *SourceRepo) Create(ctx context.Context, s *entity.Source) error {
	extractHintsJSON, err := json.Marshal(s.ExtractHints)
	if err != nil {
		return fmt.Errorf("Create: marshal extract_hints: %w", err)
	}

	const query = `
INSERT INTO sources (identifier, name, url, rss_url, tier, active, weight,
       check_frequency_seconds, rate_limit_per_minute, user_agent_override,
       http_timeout_seconds, max_articles, scope_allow, scope_deny,
       scope_post_url_regex, discovery_listing_urls, discovery_post_link_selector,
       discovery_max_pages, extract_hints, categories)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		s.Identifier, s.Name, s.URL, nullable(s.RSSURL), s.Tier, s.Active, s.Weight,
		s.CheckFrequencySeconds, s.RateLimitPerMinute, nullable(s.UserAgentOverride),
		s.HTTPTimeoutSeconds, s.MaxArticles,
		pq.Array(s.Scope.AllowHosts), pq.Array(s.Scope.DenyHosts),
		nullable(s.Scope.PostURLRegex),
		pq.Array(s.DiscoveryHints.ListingURLs), nullable(s.DiscoveryHints.PostLinkSelector),
		s.DiscoveryHints.MaxPages, extractHintsJSON,
		pq.Array(s.Categories),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *SourceRepo) Update(ctx context.Context, s *entity.Source) error {
	extractHintsJSON, err := json.Marshal(s.ExtractHints)
	if err != nil {
		return fmt.Errorf("Update: marshal extract_hints: %w", err)
	}

	const query = `
UPDATE sources SET
       identifier = $1, name = $2, url = $3, rss_url = $4, tier = $5, active = $6,
       weight = $7, check_frequency_seconds = $8, rate_limit_per_minute = $9,
       user_agent_override = $10, http_timeout_seconds = $11, max_articles = $12,
       scope_allow = $13, scope_deny = $14, scope_post_url_regex = $15,
       discovery_listing_urls = $16, discovery_post_link_selector = $17,
       discovery_max_pages = $18, extract_hints = $19, categories = $20,
       updated_at = now()
WHERE id = $21`
	res, err := repo.db.ExecContext(ctx, query,
		s.Identifier, s.Name, s.URL, nullable(s.RSSURL), s.Tier, s.Active,
		s.Weight, s.CheckFrequencySeconds, s.RateLimitPerMinute,
		nullable(s.UserAgentOverride), s.HTTPTimeoutSeconds, s.MaxArticles,
		pq.Array(s.Scope.AllowHosts), pq.Array(s.Scope.DenyHosts), nullable(s.Scope.PostURLRegex),
		pq.Array(s.DiscoveryHints.ListingURLs), nullable(s.DiscoveryHints.PostLinkSelector),
		s.DiscoveryHints.MaxPages, extractHintsJSON, pq.Array(s.Categories),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *SourceRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM sources WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
