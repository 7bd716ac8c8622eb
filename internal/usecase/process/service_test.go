package process

import (
	"context"
	"testing"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

type fakeArticleRepo struct {
	byHash map[string]*entity.Article
	byID   map[int64]*entity.Article
	nextID int64
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{byHash: map[string]*entity.Article{}, byID: map[int64]*entity.Article{}, nextID: 1}
}

func (r *fakeArticleRepo) Get(_ context.Context, id int64) (*entity.Article, error) {
	return r.byID[id], nil
}
func (r *fakeArticleRepo) GetByContentHash(_ context.Context, sourceID int64, hash string) (*entity.Article, error) {
	a := r.byHash[hash]
	if a == nil || a.SourceID != sourceID {
		return nil, nil
	}
	return a, nil
}
func (r *fakeArticleRepo) GetByCanonicalURL(context.Context, int64, string) (*entity.Article, error) {
	return nil, nil
}
func (r *fakeArticleRepo) ListBySource(context.Context, int64, int) ([]*entity.Article, error) {
	return nil, nil
}
func (r *fakeArticleRepo) CountBySource(_ context.Context, sourceID int64) (int64, error) {
	var n int64
	for _, a := range r.byID {
		if a.SourceID == sourceID {
			n++
		}
	}
	return n, nil
}
func (r *fakeArticleRepo) Create(_ context.Context, a *entity.Article) error {
	a.ID = r.nextID
	r.nextID++
	r.byHash[a.ContentHash] = a
	r.byID[a.ID] = a
	return nil
}
func (r *fakeArticleRepo) Update(context.Context, *entity.Article) error { return nil }
func (r *fakeArticleRepo) Delete(context.Context, int64) error           { return nil }
func (r *fakeArticleRepo) ExistsByCanonicalURL(context.Context, int64, string) (bool, error) {
	return false, nil
}

type fakeSimHashRepo struct {
	index map[int64]uint64
}

func newFakeSimHashRepo() *fakeSimHashRepo { return &fakeSimHashRepo{index: map[int64]uint64{}} }

func (r *fakeSimHashRepo) CandidatesForBands(context.Context, [4]uint16) ([]int64, error) {
	ids := make([]int64, 0, len(r.index))
	for id := range r.index {
		ids = append(ids, id)
	}
	return ids, nil
}
func (r *fakeSimHashRepo) Index(_ context.Context, articleID int64, simhash uint64) error {
	r.index[articleID] = simhash
	return nil
}
func (r *fakeSimHashRepo) CompactOrphans(context.Context) (int64, error) { return 0, nil }

type fakeURLTrackingRepo struct {
	rows map[string]*entity.URLTracking
}

func newFakeURLTrackingRepo() *fakeURLTrackingRepo {
	return &fakeURLTrackingRepo{rows: map[string]*entity.URLTracking{}}
}

func (r *fakeURLTrackingRepo) Get(_ context.Context, sourceID int64, canonicalURL string) (*entity.URLTracking, error) {
	return r.rows[canonicalURL], nil
}
func (r *fakeURLTrackingRepo) Upsert(_ context.Context, t *entity.URLTracking) error {
	r.rows[t.CanonicalURL] = t
	return nil
}

type fakeWorkflowTriggerRepo struct {
	created []*entity.WorkflowTrigger
}

func (r *fakeWorkflowTriggerRepo) Create(_ context.Context, t *entity.WorkflowTrigger) error {
	r.created = append(r.created, t)
	return nil
}
func (r *fakeWorkflowTriggerRepo) ListUnsent(context.Context, int) ([]*entity.WorkflowTrigger, error) {
	return r.created, nil
}

func newTestService(t *testing.T) (*Service, Repos) {
	t.Helper()
	repos := Repos{
		Articles: newFakeArticleRepo(),
		SimHash:  newFakeSimHashRepo(),
		URLTrack: newFakeURLTrackingRepo(),
		Workflow: &fakeWorkflowTriggerRepo{},
	}
	svc := &Service{
		reader:               repos,
		autoTriggerThreshold: DefaultAutoTriggerThreshold,
		dryRun:               true,
		now:                  func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) },
	}
	return svc, repos
}

func longThreatContent() string {
	sentences := []string{
		"Incident responders traced the intrusion across three compromised workstations overnight.",
		"Forensic analysts collected memory captures before the affected hosts were reimaged.",
		"The campaign relied on spear-phishing lures disguised as vendor invoices.",
		"Defenders rotated credentials and revoked active sessions across the domain.",
		"Telemetry from the endpoint agents surfaced unusual parent-child process chains.",
		"A follow-up sweep confirmed no further lateral movement within the segment.",
		"The security team published a timeline summarizing each stage of the attack.",
		"Network egress logs showed sporadic beaconing to a handful of external hosts.",
	}
	content := ""
	for i := 0; i < 12; i++ {
		content += sentences[i%len(sentences)] + " "
	}
	content += "The attacker abused rundll32.exe and mshta.exe for execution, then used "
	content += "mimikatz against sekurlsa to dump credentials from lsass.exe. "
	content += "Indicators included CVE-2024-0001, the hex blob 0xdeadbeefcafebabe, "
	content += `the registry key HKEY_LOCAL_MACHINE\Software\Test, the path C:\Windows\System32\test.exe, `
	content += "and the hash d41d8cd98f00b204e9800998ecf8427e. ```beacon code```"
	return content
}

func TestService_Process_StoresNewCandidate(t *testing.T) {
	svc, _ := newTestService(t)
	src := &entity.Source{ID: 1, Weight: 1.0}
	cand := Candidate{
		OriginalURL: "https://example.com/a",
		Title:       "A Detailed Technical Writeup On Lateral Movement",
		Content:     longThreatContent(),
	}

	result, err := svc.Process(context.Background(), src, cand)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeStored {
		t.Fatalf("expected stored, got %s (%s)", result.Outcome, result.RejectReason)
	}
	if !result.Triggered {
		t.Error("expected workflow trigger for high threat-hunting score")
	}
}

func TestService_Process_RejectsInvalidContent(t *testing.T) {
	svc, _ := newTestService(t)
	src := &entity.Source{ID: 1, Weight: 1.0}
	cand := Candidate{OriginalURL: "https://example.com/b", Title: "x", Content: "too short"}

	result, err := svc.Process(context.Background(), src, cand)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", result.Outcome)
	}
}

func TestService_Process_ExactDuplicate(t *testing.T) {
	svc, repos := newTestService(t)
	src := &entity.Source{ID: 1, Weight: 1.0}
	cand := Candidate{
		OriginalURL: "https://example.com/c",
		Title:       "A Detailed Technical Writeup On Lateral Movement",
		Content:     longThreatContent(),
	}

	first, err := svc.Process(context.Background(), src, cand)
	if err != nil || first.Outcome != OutcomeStored {
		t.Fatalf("expected first candidate stored, got %v err=%v", first, err)
	}
	// Simulate the stored article existing in the store for the next check.
	stored := first.Article
	repos.Articles.(*fakeArticleRepo).byHash[stored.ContentHash] = stored

	second, err := svc.Process(context.Background(), src, cand)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if second.Outcome != OutcomeDuplicate || second.DuplicateKind != DuplicateExact {
		t.Fatalf("expected exact duplicate, got %+v", second)
	}
}

func TestService_Process_RejectedBelowFloorUnlessTrusted(t *testing.T) {
	svc, _ := newTestService(t)
	untrusted := &entity.Source{ID: 1, Weight: 1.0}
	trusted := &entity.Source{ID: 2, Weight: 2.0}
	stale := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	cand := Candidate{
		OriginalURL: "https://example.com/d",
		Title:       "the",
		Content:     "short content that is just barely over fifty characters long",
		PublishedAt: &stale,
	}

	result, err := svc.Process(context.Background(), untrusted, cand)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome != OutcomeRejected {
		t.Errorf("expected untrusted low-quality candidate rejected, got %s", result.Outcome)
	}

	cand.OriginalURL = "https://example.com/e"
	result, err = svc.Process(context.Background(), trusted, cand)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Outcome == OutcomeRejected {
		t.Error("expected trusted source to be exempt from the quality floor")
	}
}

var _ repository.ArticleRepository = (*fakeArticleRepo)(nil)
var _ repository.SimHashRepository = (*fakeSimHashRepo)(nil)
var _ repository.URLTrackingRepository = (*fakeURLTrackingRepo)(nil)
var _ repository.WorkflowTriggerRepository = (*fakeWorkflowTriggerRepo)(nil)
