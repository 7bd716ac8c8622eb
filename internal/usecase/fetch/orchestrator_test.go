package fetch_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
	"catchup-feed/internal/usecase/fetch"
	"catchup-feed/internal/usecase/process"
)

// --- fakes for the repositories the Orchestrator talks to directly ---

type fakeSourceRepo struct{ sources map[int64]*entity.Source }

func (r *fakeSourceRepo) Get(_ context.Context, id int64) (*entity.Source, error) {
	return r.sources[id], nil
}
func (r *fakeSourceRepo) GetByIdentifier(context.Context, string) (*entity.Source, error) {
	return nil, nil
}
func (r *fakeSourceRepo) List(context.Context) ([]*entity.Source, error)       { return nil, nil }
func (r *fakeSourceRepo) ListActive(context.Context) ([]*entity.Source, error) { return nil, nil }
func (r *fakeSourceRepo) Create(context.Context, *entity.Source) error         { return nil }
func (r *fakeSourceRepo) Update(context.Context, *entity.Source) error         { return nil }
func (r *fakeSourceRepo) Delete(context.Context, int64) error                  { return nil }

type fakeSourceStateRepo struct{ states map[int64]*entity.SourceState }

func (r *fakeSourceStateRepo) Get(_ context.Context, sourceID int64) (*entity.SourceState, error) {
	return r.states[sourceID], nil
}
func (r *fakeSourceStateRepo) DueForCheck(context.Context, time.Time, int) ([]int64, error) {
	return nil, nil
}
func (r *fakeSourceStateRepo) Upsert(_ context.Context, s *entity.SourceState) error {
	cp := *s
	r.states[s.SourceID] = &cp
	return nil
}

type fakeSourceCheckRepo struct {
	created []*entity.SourceCheck
	nextID  int64
}

func (r *fakeSourceCheckRepo) Create(_ context.Context, c *entity.SourceCheck) (int64, error) {
	r.nextID++
	c.ID = r.nextID
	cp := *c
	r.created = append(r.created, &cp)
	return r.nextID, nil
}
func (r *fakeSourceCheckRepo) Finish(_ context.Context, c *entity.SourceCheck) error {
	for _, existing := range r.created {
		if existing.ID == c.ID {
			*existing = *c
			return nil
		}
	}
	return nil
}
func (r *fakeSourceCheckRepo) ListRecent(context.Context, int64, int) ([]*entity.SourceCheck, error) {
	return r.created, nil
}
func (r *fakeSourceCheckRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeSourceLeaseRepo struct{ held map[int64]string }

func (r *fakeSourceLeaseRepo) TryAcquire(_ context.Context, lease *entity.SourceLease, _ time.Duration, _ time.Time) (bool, error) {
	if holder, ok := r.held[lease.SourceID]; ok && holder != lease.Holder {
		return false, nil
	}
	r.held[lease.SourceID] = lease.Holder
	return true, nil
}
func (r *fakeSourceLeaseRepo) Release(_ context.Context, sourceID int64, holder string) error {
	if r.held[sourceID] == holder {
		delete(r.held, sourceID)
	}
	return nil
}

type fakeURLTrackingRepo struct{ rows map[string]*entity.URLTracking }

func (r *fakeURLTrackingRepo) Get(_ context.Context, _ int64, canonicalURL string) (*entity.URLTracking, error) {
	return r.rows[canonicalURL], nil
}
func (r *fakeURLTrackingRepo) Upsert(_ context.Context, t *entity.URLTracking) error {
	r.rows[t.CanonicalURL] = t
	return nil
}

// --- fakes for the repositories internal/usecase/process.Service reads from
// in --dry-run mode, which is all the Orchestrator tests exercise (no live
// *sql.DB is available in-process) ---

type fakeArticleRepo struct{}

func (fakeArticleRepo) Get(context.Context, int64) (*entity.Article, error) { return nil, nil }
func (fakeArticleRepo) GetByContentHash(context.Context, int64, string) (*entity.Article, error) {
	return nil, nil
}
func (fakeArticleRepo) GetByCanonicalURL(context.Context, int64, string) (*entity.Article, error) {
	return nil, nil
}
func (fakeArticleRepo) ListBySource(context.Context, int64, int) ([]*entity.Article, error) {
	return nil, nil
}
func (fakeArticleRepo) CountBySource(context.Context, int64) (int64, error) { return 0, nil }
func (fakeArticleRepo) Create(context.Context, *entity.Article) error { return nil }
func (fakeArticleRepo) Update(context.Context, *entity.Article) error { return nil }
func (fakeArticleRepo) Delete(context.Context, int64) error           { return nil }
func (fakeArticleRepo) ExistsByCanonicalURL(context.Context, int64, string) (bool, error) {
	return false, nil
}

type fakeSimHashRepo struct{}

func (fakeSimHashRepo) CandidatesForBands(context.Context, [4]uint16) ([]int64, error) {
	return nil, nil
}
func (fakeSimHashRepo) Index(context.Context, int64, uint64) error { return nil }
func (fakeSimHashRepo) CompactOrphans(context.Context) (int64, error) { return 0, nil }

type fakeProcessURLTrackingRepo struct{}

func (fakeProcessURLTrackingRepo) Get(context.Context, int64, string) (*entity.URLTracking, error) {
	return nil, nil
}
func (fakeProcessURLTrackingRepo) Upsert(context.Context, *entity.URLTracking) error { return nil }

type fakeWorkflowTriggerRepo struct{}

func (fakeWorkflowTriggerRepo) Create(context.Context, *entity.WorkflowTrigger) error { return nil }
func (fakeWorkflowTriggerRepo) ListUnsent(context.Context, int) ([]*entity.WorkflowTrigger, error) {
	return nil, nil
}

func newTestRepoFactory() process.RepoFactory {
	return func(conn interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}) process.Repos {
		return process.Repos{
			Articles: fakeArticleRepo{},
			SimHash:  fakeSimHashRepo{},
			URLTrack: fakeProcessURLTrackingRepo{},
			Workflow: fakeWorkflowTriggerRepo{},
		}
	}
}

type fakeTier struct {
	candidates []fetch.ArticleCandidate
	meta       *fetch.FetchMeta
	err        error
}

func (t *fakeTier) Fetch(context.Context, *entity.Source, *entity.SourceState) ([]fetch.ArticleCandidate, *fetch.FetchMeta, error) {
	return t.candidates, t.meta, t.err
}

func newTestOrchestrator(src *entity.Source, tier fetch.Tier) (*fetch.Orchestrator, *fakeSourceStateRepo, *fakeSourceCheckRepo) {
	sources := &fakeSourceRepo{sources: map[int64]*entity.Source{src.ID: src}}
	states := &fakeSourceStateRepo{states: map[int64]*entity.SourceState{}}
	checks := &fakeSourceCheckRepo{}
	leases := &fakeSourceLeaseRepo{held: map[int64]string{}}
	urlTracking := &fakeURLTrackingRepo{rows: map[string]*entity.URLTracking{}}

	processor := process.NewService(nil, newTestRepoFactory(), process.DefaultAutoTriggerThreshold, true, slog.Default())

	orch := fetch.NewOrchestrator(sources, states, checks, leases, urlTracking, processor,
		map[entity.Tier]fetch.Tier{entity.TierRSS: tier, entity.TierStructured: tier, entity.TierLegacy: tier},
		"test-worker")
	return orch, states, checks
}

func TestOrchestrator_CheckSource_StoresCandidatesAndSchedulesNextRun(t *testing.T) {
	src := &entity.Source{
		ID: 1, Identifier: "test-src", RSSURL: "https://example.com/feed.xml",
		Active: true, Weight: 1.0, CheckFrequencySeconds: 1800,
	}
	published := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	tier := &fakeTier{
		candidates: []fetch.ArticleCandidate{
			{Title: "A Detailed Technical Writeup On Lateral Movement And Persistence", URL: "https://example.com/a", Content: longContent(), PublishedAt: &published},
		},
		meta: &fetch.FetchMeta{HTTPStatus: 200},
	}
	orch, states, checks := newTestOrchestrator(src, tier)

	result, err := orch.CheckSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("CheckSource: %v", err)
	}
	if result.ArticlesSeen != 1 {
		t.Fatalf("expected 1 article seen, got %d", result.ArticlesSeen)
	}

	state := states.states[src.ID]
	if state == nil {
		t.Fatal("expected source state to be recorded")
	}
	if state.ConsecutiveFailures != 0 {
		t.Errorf("expected consecutive failures reset to 0, got %d", state.ConsecutiveFailures)
	}
	if !state.NextRunAt.After(time.Now().Add(20 * time.Minute)) {
		t.Errorf("expected next_run_at roughly check_frequency ahead, got %v", state.NextRunAt)
	}
	if len(checks.created) != 1 || checks.created[0].FinishedAt == nil {
		t.Fatalf("expected one finished source_check row, got %+v", checks.created)
	}
}

func TestOrchestrator_CheckSource_FetchErrorAppliesBackoff(t *testing.T) {
	src := &entity.Source{
		ID: 2, Identifier: "broken-src", RSSURL: "https://example.com/feed.xml",
		Active: true, Weight: 1.0, CheckFrequencySeconds: 1800,
	}
	tier := &fakeTier{err: fetch.ErrFeedFetchFailed}
	orch, states, checks := newTestOrchestrator(src, tier)

	_, err := orch.CheckSource(context.Background(), src.ID)
	if err == nil {
		t.Fatal("expected CheckSource to surface the fetch error")
	}

	state := states.states[src.ID]
	if state == nil || state.ConsecutiveFailures != 1 {
		t.Fatalf("expected consecutive_failures incremented to 1, got %+v", state)
	}
	if !state.NextRunAt.After(time.Now().Add(1800 * time.Second)) {
		t.Errorf("expected backoff beyond the base check frequency, got %v", state.NextRunAt)
	}
	if len(checks.created) != 1 || checks.created[0].ErrorKind == "" {
		t.Fatalf("expected one failed source_check row with an error kind, got %+v", checks.created)
	}
}

func TestOrchestrator_CheckSource_AlreadyLeasedIsNotAFailure(t *testing.T) {
	src := &entity.Source{ID: 3, Identifier: "leased-src", RSSURL: "https://example.com/feed.xml", Active: true, Weight: 1.0, CheckFrequencySeconds: 1800}

	leases := &fakeSourceLeaseRepo{held: map[int64]string{src.ID: "other-worker"}}
	orch := fetch.NewOrchestrator(
		&fakeSourceRepo{sources: map[int64]*entity.Source{src.ID: src}},
		&fakeSourceStateRepo{states: map[int64]*entity.SourceState{}},
		&fakeSourceCheckRepo{},
		leases,
		&fakeURLTrackingRepo{rows: map[string]*entity.URLTracking{}},
		process.NewService(nil, newTestRepoFactory(), process.DefaultAutoTriggerThreshold, true, slog.Default()),
		map[entity.Tier]fetch.Tier{entity.TierRSS: &fakeTier{}},
		"this-worker",
	)

	_, err := orch.CheckSource(context.Background(), src.ID)
	if err != fetch.ErrSourceLeased {
		t.Fatalf("expected ErrSourceLeased, got %v", err)
	}
}

func longContent() string {
	sentences := []string{
		"Analysts observed a new loader delivered through a compromised update server.",
		"The payload established persistence via a scheduled task disguised as a system update.",
		"Command and control traffic blended with legitimate cloud storage API calls.",
		"Responders isolated the affected segment before lateral movement could spread further.",
	}
	content := ""
	for i := 0; i < 15; i++ {
		content += sentences[i%len(sentences)] + " "
	}
	return content
}

var (
	_ repository.SourceRepository      = (*fakeSourceRepo)(nil)
	_ repository.SourceStateRepository = (*fakeSourceStateRepo)(nil)
	_ repository.SourceCheckRepository = (*fakeSourceCheckRepo)(nil)
	_ repository.SourceLeaseRepository = (*fakeSourceLeaseRepo)(nil)
	_ repository.URLTrackingRepository = (*fakeURLTrackingRepo)(nil)
)
