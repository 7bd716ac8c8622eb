package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/domain/entity/taskerr"
	"catchup-feed/internal/infra/adapter/persistence/postgres"
)

func articleRow(a *entity.Article) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "source_id", "canonical_url", "original_url", "title", "content", "raw_html",
		"published_at", "discovered_at", "author", "tags", "language", "content_hash", "simhash",
		"quality_score", "threat_hunting_score", "metadata",
	}).AddRow(
		a.ID, a.SourceID, a.CanonicalURL, a.OriginalURL, a.Title, a.Content, a.RawHTML,
		a.PublishedAt, a.DiscoveredAt, a.Author, pq.Array(a.Tags), a.Language, a.ContentHash, a.SimHash,
		a.QualityScore, a.ThreatHuntingScore, []byte(`{}`),
	)
}

func testArticle() *entity.Article {
	published := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	return &entity.Article{
		ID: 1, SourceID: 2,
		CanonicalURL: "https://example.com/post", OriginalURL: "https://example.com/post?utm_source=x",
		Title: "A Post About Living Off the Land", Content: "body text",
		PublishedAt:        &published,
		DiscoveredAt:       time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC),
		Author:             "jane",
		Tags:               []string{"ransomware"},
		Language:           "en",
		ContentHash:        "deadbeef",
		SimHash:            12345,
		QualityScore:       0.8,
		ThreatHuntingScore: 70,
		Metadata:           map[string]any{},
	}
}

func TestArticleRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	want := testArticle()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs(int64(1)).
		WillReturnRows(articleRow(want))

	repo := postgres.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestArticleRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	repo := postgres.NewArticleRepo(db)
	got, err := repo.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("Get: unexpected error %v", err)
	}
	if got != nil {
		t.Errorf("Get: expected nil, got %+v", got)
	}
}

func TestArticleRepo_GetByContentHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	want := testArticle()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs(int64(2), "deadbeef").
		WillReturnRows(articleRow(want))

	repo := postgres.NewArticleRepo(db)
	got, err := repo.GetByContentHash(context.Background(), 2, "deadbeef")
	if err != nil {
		t.Fatalf("GetByContentHash: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetByContentHash mismatch (-want +got):\n%s", diff)
	}
}

func TestArticleRepo_ExistsByCanonicalURL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs(int64(2), "https://example.com/post").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := postgres.NewArticleRepo(db)
	got, err := repo.ExistsByCanonicalURL(context.Background(), 2, "https://example.com/post")
	if err != nil {
		t.Fatalf("ExistsByCanonicalURL: %v", err)
	}
	if !got {
		t.Error("ExistsByCanonicalURL: expected true")
	}
}

func TestArticleRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	article := testArticle()
	article.ID = 0
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO articles`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	repo := postgres.NewArticleRepo(db)
	if err := repo.Create(context.Background(), article); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if article.ID != 42 {
		t.Errorf("Create: expected ID=42, got %d", article.ID)
	}
}

func TestArticleRepo_Create_DuplicateConstraint(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	article := testArticle()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO articles`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	repo := postgres.NewArticleRepo(db)
	err = repo.Create(context.Background(), article)
	if err == nil {
		t.Fatal("Create: expected unique-violation error")
	}
	var taskErr *taskerr.Error
	if !errors.As(err, &taskErr) || taskErr.Kind != taskerr.KindStorageConflict {
		t.Errorf("Create: expected a %s error, got %v", taskerr.KindStorageConflict, err)
	}
}

func TestArticleRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM articles`)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := postgres.NewArticleRepo(db)
	if err := repo.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
