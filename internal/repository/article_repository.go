package repository

import (
	"context"

	"catchup-feed/internal/domain/entity"
)

// ArticleRepository persists Article rows. Exact dedup is enforced at the
// (source_id, canonical_url) and (source_id, content_hash) unique
// constraints the Processor's Create call relies on.
type ArticleRepository interface {
	Get(ctx context.Context, id int64) (*entity.Article, error)
	GetByContentHash(ctx context.Context, sourceID int64, contentHash string) (*entity.Article, error)
	GetByCanonicalURL(ctx context.Context, sourceID int64, canonicalURL string) (*entity.Article, error)
	ListBySource(ctx context.Context, sourceID int64, limit int) ([]*entity.Article, error)
	// CountBySource reports the total stored article count for a source,
	// used by the `stats` CLI command.
	CountBySource(ctx context.Context, sourceID int64) (int64, error)
	Create(ctx context.Context, article *entity.Article) error
	Update(ctx context.Context, article *entity.Article) error
	Delete(ctx context.Context, id int64) error
	// ExistsByCanonicalURL reports whether the exact-dedup unique key
	// already has a row, used by the Processor's dedup stage before it
	// attempts the more expensive near-dup SimHash lookup.
	ExistsByCanonicalURL(ctx context.Context, sourceID int64, canonicalURL string) (bool, error)
}

// SimHashRepository looks up near-duplicate candidates via the 4x16-bit
// band index, and records new fingerprints as articles are persisted.
type SimHashRepository interface {
	// CandidatesForBands returns article IDs sharing at least one band
	// value with the given SimHash bands, the candidate set the
	// Processor then filters by exact Hamming distance.
	CandidatesForBands(ctx context.Context, bands [4]uint16) ([]int64, error)
	Index(ctx context.Context, articleID int64, simhash uint64) error
	// CompactOrphans deletes band rows whose article no longer exists,
	// the weekly maintenance pass calls "compact SimHash
	// buckets". It returns the number of rows removed.
	CompactOrphans(ctx context.Context) (int64, error)
}
