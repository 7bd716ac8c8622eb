package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"catchup-feed/internal/content/urlnorm"
	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/observability/metrics"
	"catchup-feed/internal/repository"
	"catchup-feed/internal/usecase/process"
)

// defaultBackoffCap bounds the exponential backoff applied to a source's
// next_run_at after a failed check: min(freq*2^failures, 24h).
const defaultBackoffCap = 24 * time.Hour

// jitterFraction randomizes next_run_at by up to ±10% so a fleet of sources
// sharing a check_frequency don't all wake up on the same tick.
const jitterFraction = 0.10

// Orchestrator implements the scheduled source-checking pipeline: claim a
// source's lease, select its extraction tier, dispatch to that tier, feed
// every resulting candidate through the Processor, and update the source's
// scheduling state.
type Orchestrator struct {
	Sources      repository.SourceRepository
	SourceStates repository.SourceStateRepository
	Checks       repository.SourceCheckRepository
	Leases       repository.SourceLeaseRepository
	URLTracking  repository.URLTrackingRepository
	Processor    *process.Service
	Tiers        map[entity.Tier]Tier

	Holder string // opaque identifier for this worker, used by the lease table
	Now    func() time.Time
	Log    *slog.Logger
}

// NewOrchestrator builds an Orchestrator with sensible defaults for Now/Log.
func NewOrchestrator(
	sources repository.SourceRepository,
	sourceStates repository.SourceStateRepository,
	checks repository.SourceCheckRepository,
	leases repository.SourceLeaseRepository,
	urlTracking repository.URLTrackingRepository,
	processor *process.Service,
	tiers map[entity.Tier]Tier,
	holder string,
) *Orchestrator {
	return &Orchestrator{
		Sources:      sources,
		SourceStates: sourceStates,
		Checks:       checks,
		Leases:       leases,
		URLTracking:  urlTracking,
		Processor:    processor,
		Tiers:        tiers,
		Holder:       holder,
		Now:          time.Now,
		Log:          slog.Default(),
	}
}

// CheckResult summarizes one check_source run.
type CheckResult struct {
	SourceID     int64
	ArticlesSeen int
	ArticlesNew  int
	Outcomes     []process.Result
}

// CheckSource runs check_source(source_id): claim, fetch, process every
// candidate, and update scheduling state. A source already leased by
// another worker returns ErrSourceLeased, not an error the caller should
// treat as a check failure.
func (o *Orchestrator) CheckSource(ctx context.Context, sourceID int64) (*CheckResult, error) {
	return o.CheckSourceForce(ctx, sourceID, false)
}

// CheckSourceForce runs check_source(source_id) exactly like CheckSource,
// but when force is true, clears the source's conditional-request headers
// (ETag/Last-Modified) before dispatch so the tier issues an unconditional
// fetch even if the upstream content hasn't changed (the
// `collect --force`).
func (o *Orchestrator) CheckSourceForce(ctx context.Context, sourceID int64, force bool) (*CheckResult, error) {
	now := o.Now()

	src, err := o.Sources.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if src == nil || !src.Active {
		return nil, fmt.Errorf("source %d is not active", sourceID)
	}

	acquired, err := o.Leases.TryAcquire(ctx, &entity.SourceLease{SourceID: sourceID, Holder: o.Holder, AcquiredAt: now}, entity.StaleAfter, now)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		return nil, ErrSourceLeased
	}
	defer func() {
		if err := o.Leases.Release(context.WithoutCancel(ctx), sourceID, o.Holder); err != nil {
			o.Log.Warn("failed to release source lease", slog.Int64("source_id", sourceID), slog.Any("error", err))
		}
	}()

	state, err := o.SourceStates.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source state: %w", err)
	}
	if state == nil {
		state = &entity.SourceState{SourceID: sourceID, Health: entity.HealthHealthy, NextRunAt: now}
	}
	if force {
		forced := *state
		forced.LastETag = ""
		forced.LastModified = ""
		state = &forced
	}

	checkID, err := o.Checks.Create(ctx, &entity.SourceCheck{SourceID: sourceID, StartedAt: now})
	if err != nil {
		return nil, fmt.Errorf("create source check: %w", err)
	}

	tier := src.EffectiveTier()
	fetcher, ok := o.Tiers[tier]
	if !ok {
		taskErr := taskerr.New(taskerr.KindFatal, fmt.Sprintf("no fetcher registered for tier %d", tier))
		o.finishFailure(ctx, src, state, checkID, now, taskErr)
		return nil, taskErr
	}

	candidates, meta, err := fetcher.Fetch(ctx, src, state)
	if err != nil {
		taskErr := classifyFetchError(err)
		o.finishFailure(ctx, src, state, checkID, now, taskErr)
		return nil, taskErr
	}
	if meta == nil {
		meta = &FetchMeta{}
	}

	result := &CheckResult{SourceID: sourceID}
	if !meta.NotModified {
		for _, cand := range candidates {
			outcome, err := o.processCandidate(ctx, src, cand)
			if err != nil {
				o.Log.Warn("failed to process candidate",
					slog.Int64("source_id", sourceID), slog.String("url", cand.URL), slog.Any("error", err))
				continue
			}
			if outcome == nil {
				continue
			}
			result.ArticlesSeen++
			if outcome.Outcome == process.OutcomeStored {
				result.ArticlesNew++
			}
			result.Outcomes = append(result.Outcomes, *outcome)
		}
	}
	o.suppressGoneURLs(ctx, src, meta.SuppressedURLs)

	o.finishSuccess(ctx, src, state, checkID, now, meta, result)
	metrics.RecordFeedCrawl(sourceID, o.Now().Sub(now), int64(result.ArticlesSeen), int64(result.ArticlesNew), int64(result.ArticlesSeen-result.ArticlesNew))
	return result, nil
}

// processCandidate normalizes the candidate's URL, skips ones already
// tracked (discovery dedup), applies the source's scope filters, and hands
// anything left to the Processor.
func (o *Orchestrator) processCandidate(ctx context.Context, src *entity.Source, cand ArticleCandidate) (*process.Result, error) {
	canonicalURL, err := urlnorm.Normalize(cand.URL)
	if err != nil {
		return nil, fmt.Errorf("normalize url: %w", err)
	}

	if tracking, err := o.URLTracking.Get(ctx, src.ID, canonicalURL); err != nil {
		return nil, fmt.Errorf("check url tracking: %w", err)
	} else if tracking != nil {
		return nil, nil
	}

	if !entity.URLInScope(src, canonicalURL) {
		if err := o.URLTracking.Upsert(ctx, &entity.URLTracking{
			SourceID: src.ID, CanonicalURL: canonicalURL,
			FirstSeenAt: o.Now(), LastSeenAt: o.Now(), Suppressed: true,
		}); err != nil {
			return nil, fmt.Errorf("track out-of-scope url: %w", err)
		}
		return nil, nil
	}

	result, err := o.Processor.Process(ctx, src, process.Candidate{
		OriginalURL: cand.URL,
		Title:       cand.Title,
		Content:     cand.Content,
		RawHTML:     cand.RawHTML,
		Author:      cand.Author,
		PublishedAt: cand.PublishedAt,
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == process.OutcomeRejected {
		if err := o.URLTracking.Upsert(ctx, &entity.URLTracking{
			SourceID: src.ID, CanonicalURL: canonicalURL,
			FirstSeenAt: o.Now(), LastSeenAt: o.Now(),
		}); err != nil {
			return nil, fmt.Errorf("track rejected url: %w", err)
		}
	}
	return result, nil
}

// suppressGoneURLs deactivates every detail-page URL a tier reported as
// 404/410 so discovery stops surfacing it as a candidate on future checks.
func (o *Orchestrator) suppressGoneURLs(ctx context.Context, src *entity.Source, rawURLs []string) {
	now := o.Now()
	for _, rawURL := range rawURLs {
		canonicalURL, err := urlnorm.Normalize(rawURL)
		if err != nil {
			continue
		}
		if err := o.URLTracking.Upsert(ctx, &entity.URLTracking{
			SourceID: src.ID, CanonicalURL: canonicalURL,
			FirstSeenAt: now, LastSeenAt: now, Suppressed: true,
		}); err != nil {
			o.Log.Warn("failed to suppress gone url",
				slog.Int64("source_id", src.ID), slog.String("url", rawURL), slog.Any("error", err))
		}
	}
}

func (o *Orchestrator) finishSuccess(ctx context.Context, src *entity.Source, state *entity.SourceState, checkID int64, startedAt time.Time, meta *FetchMeta, result *CheckResult) {
	safeCtx := context.WithoutCancel(ctx)
	now := o.Now()

	state.LastCheckedAt = &now
	state.LastSuccessAt = &now
	if meta.ETag != "" {
		state.LastETag = meta.ETag
	}
	if meta.LastModified != "" {
		state.LastModified = meta.LastModified
	}
	state.ConsecutiveFailures = 0
	state.RecomputeHealth()
	state.NextRunAt = jitteredNextRun(now, src.CheckFrequencySeconds)

	if err := o.SourceStates.Upsert(safeCtx, state); err != nil {
		o.Log.Warn("failed to update source state after success", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}

	finished := o.Now()
	if err := o.Checks.Finish(safeCtx, &entity.SourceCheck{
		ID: checkID, SourceID: src.ID, StartedAt: startedAt, FinishedAt: &finished,
		HTTPStatus: meta.HTTPStatus, Bytes: meta.BytesRead,
		ArticlesSeen: result.ArticlesSeen, ArticlesNew: result.ArticlesNew,
	}); err != nil {
		o.Log.Warn("failed to finish source check", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}
}

func (o *Orchestrator) finishFailure(ctx context.Context, src *entity.Source, state *entity.SourceState, checkID int64, startedAt time.Time, taskErr *taskerr.Error) {
	safeCtx := context.WithoutCancel(ctx)
	now := o.Now()

	state.LastCheckedAt = &now
	state.ConsecutiveFailures++
	state.RecomputeHealth()
	backoff := time.Duration(src.CheckFrequencySeconds) * time.Second
	for i := 0; i < state.ConsecutiveFailures && backoff < defaultBackoffCap; i++ {
		backoff *= 2
	}
	if backoff > defaultBackoffCap {
		backoff = defaultBackoffCap
	}
	state.NextRunAt = now.Add(backoff)

	if err := o.SourceStates.Upsert(safeCtx, state); err != nil {
		o.Log.Warn("failed to update source state after failure", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}

	finished := o.Now()
	if err := o.Checks.Finish(safeCtx, &entity.SourceCheck{
		ID: checkID, SourceID: src.ID, StartedAt: startedAt, FinishedAt: &finished,
		ErrorKind: string(taskErr.Kind), ErrorDetail: taskErr.Detail,
	}); err != nil {
		o.Log.Warn("failed to finish source check", slog.Int64("source_id", src.ID), slog.Any("error", err))
	}

	metrics.RecordFeedCrawlError(src.ID, string(taskErr.Kind))
}

// jitteredNextRun applies ±10% jitter to the next scheduled check so a
// fleet of sources with identical check_frequency doesn't thundering-herd.
func jitteredNextRun(now time.Time, checkFrequencySeconds int) time.Time {
	freq := time.Duration(checkFrequencySeconds) * time.Second
	jitter := (rand.Float64()*2 - 1) * jitterFraction
	return now.Add(freq + time.Duration(float64(freq)*jitter))
}

// classifyFetchError maps a tier's raw error into a *taskerr.Error,
// preserving an already-classified error unchanged.
func classifyFetchError(err error) *taskerr.Error {
	var te *taskerr.Error
	if errors.As(err, &te) {
		return te
	}
	return taskerr.Wrap(taskerr.KindNetwork, "fetch failed", err)
}
