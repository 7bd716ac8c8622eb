package postgres

import (
	"context"
	"fmt"

	"catchup-feed/internal/content/clean"
	"catchup-feed/internal/repository"
)

var simHashBandTables = [4]string{"simhash_band_0", "simhash_band_1", "simhash_band_2", "simhash_band_3"}

type SimHashRepo struct{ db dbtx }

func NewSimHashRepo(db dbtx) repository.SimHashRepository {
	return &SimHashRepo{db: db}
}

// CandidatesForBands unions the article IDs sharing any one of the 4 bands,
// the candidate set the Processor then narrows with an exact Hamming check.
func (repo *SimHashRepo) CandidatesForBands(ctx context.Context, bands [4]uint16) ([]int64, error) {
	seen := make(map[int64]struct{})
	candidates := make([]int64, 0, 16)

	for i, table := range simHashBandTables {
		query := fmt.Sprintf(`SELECT article_id FROM %s WHERE band_key = $1`, table)
		rows, err := repo.db.QueryContext(ctx, query, int32(bands[i]))
		if err != nil {
			return nil, fmt.Errorf("CandidatesForBands: %s: %w", table, err)
		}

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("CandidatesForBands: %s: scan: %w", table, err)
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("CandidatesForBands: %s: %w", table, err)
		}
		_ = rows.Close()
	}
	return candidates, nil
}

// CompactOrphans deletes band rows whose article_id no longer matches an
// article. The migrated schema declares the band tables' article_id with
// ON DELETE CASCADE, so on that schema this normally finds nothing to
// remove.
func (repo *SimHashRepo) CompactOrphans(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range simHashBandTables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE article_id NOT IN (SELECT id FROM articles)`, table)
		res, err := repo.db.ExecContext(ctx, query)
		if err != nil {
			return total, fmt.Errorf("CompactOrphans: %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("CompactOrphans: %s: rows affected: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func (repo *SimHashRepo) Index(ctx context.Context, articleID int64, simhash uint64) error {
	bands := clean.SimHashBands(simhash)
	for i, table := range simHashBandTables {
		query := fmt.Sprintf(`INSERT INTO %s (band_key, article_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table)
		if _, err := repo.db.ExecContext(ctx, query, int32(bands[i]), articleID); err != nil {
			return fmt.Errorf("Index: %s: %w", table, err)
		}
	}
	return nil
}
