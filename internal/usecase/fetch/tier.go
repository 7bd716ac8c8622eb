package fetch

import (
	"context"

	"catchup-feed/internal/domain/entity"
)

// Tier is the common interface the three extraction strategies
// (RSS/Atom, structured/modern scraping, legacy HTML) implement. The
// Orchestrator picks one per Source via entity.Source.EffectiveTier.
type Tier interface {
	Fetch(ctx context.Context, src *entity.Source, state *entity.SourceState) ([]ArticleCandidate, *FetchMeta, error)
}
