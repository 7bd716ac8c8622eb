package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"catchup-feed/internal/content/clean"
	"catchup-feed/internal/content/score"
	"catchup-feed/internal/content/urlnorm"
	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	infradb "catchup-feed/internal/infra/db"
	"catchup-feed/internal/repository"
)

// maxStorageConflictAttempts bounds how many times Process retries the
// dedup->persist transaction after a unique-constraint race on Create. A
// Postgres unique violation aborts the transaction it occurred in, so each
// attempt runs in a fresh one; by the second attempt, findDuplicate should
// see the row the losing side of the race just committed.
const maxStorageConflictAttempts = 3

// DefaultAutoTriggerThreshold is the threat-hunting score at and above
// which a stored article enqueues a workflow trigger.
const DefaultAutoTriggerThreshold = 80

// nearDupHammingThreshold is the maximum 64-bit Hamming distance at which
// two SimHash fingerprints are considered the same article.
const nearDupHammingThreshold = 3

// Repos bundles the repositories the Processor writes through. A fresh set
// is built against the active *sql.Tx for every Process call so the
// validate->dedup->score->persist chain commits or rolls back atomically.
type Repos struct {
	Articles repository.ArticleRepository
	SimHash  repository.SimHashRepository
	URLTrack repository.URLTrackingRepository
	Workflow repository.WorkflowTriggerRepository
}

// RepoFactory builds a Repos bundle scoped to conn, which is either the
// pool (*sql.DB, for read-only lookups) or a live transaction (*sql.Tx).
type RepoFactory func(conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) Repos

// Service implements the article-processing pipeline.
type Service struct {
	db                   *sql.DB
	newRepos             RepoFactory
	reader               Repos
	autoTriggerThreshold int
	dryRun               bool
	now                  func() time.Time
	log                  *slog.Logger
}

// NewService constructs a Processor. newRepos builds a Repos bundle from a
// *sql.DB or *sql.Tx (typically wiring internal/infra/adapter/persistence/postgres's
// New*Repo constructors); autoTriggerThreshold is QUALITY-independent and
// gates the workflow-trigger side effect; dryRun, matching the `rescore
// --dry-run`/`collect --dry-run`, evaluates the full pipeline but skips the
// persist step.
func NewService(conn *sql.DB, newRepos RepoFactory, autoTriggerThreshold int, dryRun bool, log *slog.Logger) *Service {
	if autoTriggerThreshold == 0 {
		autoTriggerThreshold = DefaultAutoTriggerThreshold
	}
	return &Service{
		db:                   conn,
		newRepos:             newRepos,
		reader:               newRepos(conn),
		autoTriggerThreshold: autoTriggerThreshold,
		dryRun:               dryRun,
		now:                  time.Now,
		log:                  log,
	}
}

// Process runs a single Candidate through validate -> exact-dedup ->
// near-dedup -> quality-score -> threat-score -> persist.
func (s *Service) Process(ctx context.Context, src *entity.Source, cand Candidate) (*Result, error) {
	canonicalURL, err := urlnorm.Normalize(cand.OriginalURL)
	if err != nil {
		return &Result{Outcome: OutcomeRejected, RejectReason: fmt.Sprintf("invalid url: %v", err)}, nil
	}

	if issues := clean.Validate(cand.Title, cand.Content, canonicalURL); len(issues) > 0 {
		return &Result{Outcome: OutcomeRejected, RejectReason: strings.Join(issues, "; ")}, nil
	}

	now := s.now()
	quality := score.Compute(cand.Title, cand.Content, cand.PublishedAt, now)
	if score.Rejected(quality.Score, src) {
		return &Result{Outcome: OutcomeRejected, RejectReason: fmt.Sprintf("quality score %.3f below reject floor", quality.Score)}, nil
	}

	threat := score.ComputeThreatHunting(cand.Content)

	article := &entity.Article{
		SourceID:           src.ID,
		CanonicalURL:       canonicalURL,
		OriginalURL:        cand.OriginalURL,
		Title:              cand.Title,
		Content:            cand.Content,
		RawHTML:            cand.RawHTML,
		PublishedAt:        cand.PublishedAt,
		DiscoveredAt:       now,
		Author:             cand.Author,
		Tags:               cand.Tags,
		Language:           cand.Language,
		ContentHash:        clean.ContentHash(cand.Title, cand.Content),
		SimHash:            clean.SimHash64(cand.Content),
		QualityScore:       quality.Score,
		ThreatHuntingScore: threat.Score,
		Metadata: map[string]any{
			entity.MetadataKeyQuality:       quality,
			entity.MetadataKeyThreatHunting: threat,
		},
	}

	if s.dryRun {
		return s.evaluate(ctx, s.reader, article)
	}

	persistOnce := func() (*Result, error) {
		var result *Result
		err := infradb.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			repos := s.newRepos(tx)
			dup, err := s.findDuplicate(ctx, repos, article)
			if err != nil {
				return err
			}
			if dup != nil {
				if err := repos.URLTrack.Upsert(ctx, &entity.URLTracking{
					SourceID:     src.ID,
					CanonicalURL: canonicalURL,
					FirstSeenAt:  now,
					LastSeenAt:   now,
					ArticleID:    &dup.DuplicateOf,
				}); err != nil {
					return fmt.Errorf("track duplicate alias: %w", err)
				}
				result = dup
				return nil
			}

			if err := repos.Articles.Create(ctx, article); err != nil {
				return fmt.Errorf("persist article: %w", err)
			}
			if err := repos.SimHash.Index(ctx, article.ID, article.SimHash); err != nil {
				return fmt.Errorf("index simhash: %w", err)
			}
			if err := repos.URLTrack.Upsert(ctx, &entity.URLTracking{
				SourceID:     src.ID,
				CanonicalURL: canonicalURL,
				FirstSeenAt:  now,
				LastSeenAt:   now,
				ArticleID:    &article.ID,
			}); err != nil {
				return fmt.Errorf("track url: %w", err)
			}

			triggered := false
			if threat.Score >= s.autoTriggerThreshold {
				if err := repos.Workflow.Create(ctx, &entity.WorkflowTrigger{
					ArticleID:  article.ID,
					Reason:     "threat_hunting_threshold",
					Score:      threat.Score,
					EnqueuedAt: now,
				}); err != nil {
					return fmt.Errorf("enqueue workflow trigger: %w", err)
				}
				triggered = true
			}
			result = &Result{Outcome: OutcomeStored, Article: article, Triggered: triggered}
			return nil
		})
		return result, err
	}

	var result *Result
	var conflictErr error
	for attempt := 1; attempt <= maxStorageConflictAttempts; attempt++ {
		result, err = persistOnce()
		if err == nil {
			break
		}
		if !isStorageConflict(err) {
			return nil, err
		}
		conflictErr = err
		result = nil
	}
	if result == nil {
		// Every attempt raced a concurrent insert of the same article. The
		// conflicting row should be visible by now; reclassify the race as
		// the exact duplicate it almost certainly is instead of failing
		// the candidate outright.
		dup, derr := s.findDuplicate(ctx, s.reader, article)
		if derr != nil || dup == nil {
			return nil, taskerr.Wrap(taskerr.KindStorageConflict, "repeated unique-constraint conflict persisting article", conflictErr)
		}
		if err := s.reader.URLTrack.Upsert(ctx, &entity.URLTracking{
			SourceID:     src.ID,
			CanonicalURL: canonicalURL,
			FirstSeenAt:  now,
			LastSeenAt:   now,
			ArticleID:    &dup.DuplicateOf,
		}); err != nil {
			return nil, fmt.Errorf("track duplicate alias after conflict: %w", err)
		}
		result = dup
	}

	if s.log != nil {
		s.log.Info("processed candidate",
			slog.Int64("source_id", src.ID),
			slog.String("outcome", string(result.Outcome)),
			slog.String("canonical_url", canonicalURL))
	}
	return result, nil
}

// evaluate runs the dedup checks read-only, for --dry-run callers that want
// the disposition without mutating the store.
func (s *Service) evaluate(ctx context.Context, repos Repos, article *entity.Article) (*Result, error) {
	dup, err := s.findDuplicate(ctx, repos, article)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return dup, nil
	}
	return &Result{
		Outcome:   OutcomeStored,
		Article:   article,
		Triggered: article.ThreatHuntingScore >= s.autoTriggerThreshold,
	}, nil
}

// isStorageConflict reports whether err is a *taskerr.Error carrying
// KindStorageConflict, traversing any fmt.Errorf("...: %w", err) wrapping
// between the repository call and here.
func isStorageConflict(err error) bool {
	var taskErr *taskerr.Error
	return errors.As(err, &taskErr) && taskErr.Kind == taskerr.KindStorageConflict
}

// findDuplicate checks exact (content_hash) then near (SimHash band +
// Hamming) duplication, read-only. It never mutates the store; the caller
// is responsible for recording the URLTracking alias when a duplicate is
// found and for persisting when it isn't.
func (s *Service) findDuplicate(ctx context.Context, repos Repos, article *entity.Article) (*Result, error) {
	existing, err := repos.Articles.GetByContentHash(ctx, article.SourceID, article.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("exact dedup lookup: %w", err)
	}
	if existing != nil {
		return &Result{Outcome: OutcomeDuplicate, DuplicateKind: DuplicateExact, DuplicateOf: existing.ID}, nil
	}

	bands := clean.SimHashBands(article.SimHash)
	candidateIDs, err := repos.SimHash.CandidatesForBands(ctx, bands)
	if err != nil {
		return nil, fmt.Errorf("near-dup candidate lookup: %w", err)
	}

	var matches []*entity.Article
	for _, id := range candidateIDs {
		candidate, err := repos.Articles.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("near-dup candidate fetch: %w", err)
		}
		if candidate == nil {
			continue
		}
		if clean.Hamming(article.SimHash, candidate.SimHash) <= nearDupHammingThreshold {
			matches = append(matches, candidate)
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}

	// Tie-break: the oldest match is the canonical article.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].DiscoveredAt.Equal(matches[j].DiscoveredAt) {
			return matches[i].DiscoveredAt.Before(matches[j].DiscoveredAt)
		}
		return matches[i].ID < matches[j].ID
	})
	canonical := matches[0]

	return &Result{Outcome: OutcomeDuplicate, DuplicateKind: DuplicateNear, DuplicateOf: canonical.ID}, nil
}

// Rescore recomputes an already-stored Article's quality and threat-hunting
// scores from its cleaned content, for the `rescore` CLI command. It never
// re-runs dedup: the article already occupies its slot in the store, and
// rescoring only refreshes its score fields and metadata. In dry-run mode
// it returns the recomputed article without persisting.
func (s *Service) Rescore(ctx context.Context, article *entity.Article) (*entity.Article, error) {
	quality := score.Compute(article.Title, article.Content, article.PublishedAt, s.now())
	threat := score.ComputeThreatHunting(article.Content)

	article.QualityScore = quality.Score
	article.ThreatHuntingScore = threat.Score
	if article.Metadata == nil {
		article.Metadata = map[string]any{}
	}
	article.Metadata[entity.MetadataKeyQuality] = quality
	article.Metadata[entity.MetadataKeyThreatHunting] = threat

	if s.dryRun {
		return article, nil
	}

	repos := s.newRepos(s.db)
	if err := repos.Articles.Update(ctx, article); err != nil {
		return nil, fmt.Errorf("persist rescored article: %w", err)
	}
	return article, nil
}
