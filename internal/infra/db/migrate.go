package db

import (
	"database/sql"
)

// MigrateUp creates the ingestion engine's schema: sources, their mutable
// scheduling state, discovered articles, the SimHash band index used for
// near-dup lookup, per-fetch audit rows, URL dedup tracking, source
// claim/lease rows, and the workflow-trigger outbox.
func MigrateUp(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
    id                           BIGSERIAL PRIMARY KEY,
    identifier                   TEXT NOT NULL UNIQUE,
    name                         TEXT NOT NULL,
    url                          TEXT NOT NULL,
    rss_url                      TEXT,
    tier                         SMALLINT NOT NULL DEFAULT 0,
    active                       BOOLEAN NOT NULL DEFAULT TRUE,
    weight                       DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    check_frequency_seconds      INT NOT NULL DEFAULT 1800,
    rate_limit_per_minute        INT NOT NULL DEFAULT 30,
    user_agent_override          TEXT,
    http_timeout_seconds         INT NOT NULL DEFAULT 30,
    max_articles                 INT NOT NULL DEFAULT 0,
    scope_allow                  TEXT[] NOT NULL DEFAULT '{}',
    scope_deny                   TEXT[] NOT NULL DEFAULT '{}',
    scope_post_url_regex         TEXT,
    discovery_listing_urls       TEXT[] NOT NULL DEFAULT '{}',
    discovery_post_link_selector TEXT,
    discovery_max_pages          INT NOT NULL DEFAULT 0,
    extract_hints                JSONB,
    categories                   TEXT[] NOT NULL DEFAULT '{}',
    created_at                   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active) WHERE active = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_sources_tier ON sources(tier)`,

		`CREATE TABLE IF NOT EXISTS source_states (
    source_id            BIGINT PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
    last_checked_at      TIMESTAMPTZ,
    last_success_at      TIMESTAMPTZ,
    last_etag            TEXT,
    last_modified        TEXT,
    consecutive_failures INT NOT NULL DEFAULT 0,
    health               TEXT NOT NULL DEFAULT 'healthy',
    next_run_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_source_states_next_run_at ON source_states(next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_source_states_health ON source_states(health)`,

		`CREATE TABLE IF NOT EXISTS articles (
    id                   BIGSERIAL PRIMARY KEY,
    source_id            BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    canonical_url        TEXT NOT NULL,
    original_url         TEXT NOT NULL,
    title                TEXT NOT NULL,
    content              TEXT NOT NULL,
    raw_html             TEXT,
    published_at         TIMESTAMPTZ,
    discovered_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    author               TEXT,
    tags                 TEXT[] NOT NULL DEFAULT '{}',
    language             TEXT,
    content_hash         CHAR(64) NOT NULL,
    simhash              BIGINT NOT NULL,
    quality_score        DOUBLE PRECISION NOT NULL DEFAULT 0,
    threat_hunting_score INT NOT NULL DEFAULT 0,
    metadata             JSONB,
    UNIQUE(source_id, canonical_url),
    UNIQUE(source_id, content_hash)
)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_threat_hunting_score ON articles(threat_hunting_score DESC)`,

		// SimHash is split into 4 x 16-bit bands; each band gets its own
		// index table so a near-dup lookup is 4 indexed equality scans
		// instead of one full-table Hamming-distance pass.
		simHashBandTableSQL("simhash_band_0"),
		simHashBandTableSQL("simhash_band_1"),
		simHashBandTableSQL("simhash_band_2"),
		simHashBandTableSQL("simhash_band_3"),

		`CREATE TABLE IF NOT EXISTS source_checks (
    id            BIGSERIAL PRIMARY KEY,
    source_id     BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    http_status   INT,
    bytes         BIGINT NOT NULL DEFAULT 0,
    articles_seen INT NOT NULL DEFAULT 0,
    articles_new  INT NOT NULL DEFAULT 0,
    error_kind    TEXT,
    error_detail  TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_source_checks_source_id_started_at ON source_checks(source_id, started_at DESC)`,

		`CREATE TABLE IF NOT EXISTS url_tracking (
    source_id      BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    canonical_url  TEXT NOT NULL,
    first_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    article_id     BIGINT REFERENCES articles(id) ON DELETE SET NULL,
    suppressed     BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (source_id, canonical_url)
)`,

		`CREATE TABLE IF NOT EXISTS source_leases (
    source_id    BIGINT PRIMARY KEY REFERENCES sources(id) ON DELETE CASCADE,
    holder       TEXT NOT NULL,
    acquired_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,

		`CREATE TABLE IF NOT EXISTS workflow_triggers (
    id           BIGSERIAL PRIMARY KEY,
    article_id   BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    reason       TEXT NOT NULL,
    score        INT NOT NULL,
    enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_triggers_article_id ON workflow_triggers(article_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func simHashBandTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    band_key    INT NOT NULL,
    article_id  BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    PRIMARY KEY (band_key, article_id)
)`
}

// MigrateDown rolls back the schema in dependency order. Use with caution:
// this deletes all ingested data.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS workflow_triggers`,
		`DROP TABLE IF EXISTS source_leases`,
		`DROP TABLE IF EXISTS url_tracking`,
		`DROP TABLE IF EXISTS source_checks`,
		`DROP TABLE IF EXISTS simhash_band_0`,
		`DROP TABLE IF EXISTS simhash_band_1`,
		`DROP TABLE IF EXISTS simhash_band_2`,
		`DROP TABLE IF EXISTS simhash_band_3`,
		`DROP TABLE IF EXISTS articles`,
		`DROP TABLE IF EXISTS source_states`,
		`DROP TABLE IF EXISTS sources`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
