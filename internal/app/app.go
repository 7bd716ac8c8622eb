// Package app wires the ingestion engine's components into the two binaries
// that use them: cmd/ingestd's one-shot CLI operations and cmd/worker's
// long-running scheduler/pool daemon. Both binaries build the same Deps and
// differ only in what they do with it.
package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"catchup-feed/internal/domain/entity"
	pgRepo "catchup-feed/internal/infra/adapter/persistence/postgres"
	"catchup-feed/internal/infra/db"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/infra/httpclient"
	"catchup-feed/internal/infra/robots"
	"catchup-feed/internal/infra/scraper"
	"catchup-feed/internal/observability/logging"
	"catchup-feed/internal/repository"
	"catchup-feed/internal/resilience/circuitbreaker"
	"catchup-feed/internal/usecase/fetch"
	"catchup-feed/internal/usecase/process"
	"catchup-feed/internal/usecase/source"
	"catchup-feed/pkg/config"
)

// Config holds the environment-driven global defaults read from the environment:
// per-source overrides win over these when a source sets its own value.
type Config struct {
	UserAgent            string
	RequestTimeout       time.Duration
	RateLimitPerMinute   int
	MaxContentLength     int
	AutoTriggerThreshold int
	WorkerConcurrency    int
	SchedulerTickSeconds int
}

// LoadConfig reads the environment variables the config layer names, falling
// back to documented defaults exactly like the rest of this codebase's
// fail-open configuration loaders.
func LoadConfig() Config {
	return Config{
		UserAgent:            config.GetEnvString("USER_AGENT", "catchup-feed/1.0 (+https://github.com/catchup-feed)"),
		RequestTimeout:       config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitPerMinute:   config.GetEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxContentLength:     config.GetEnvInt("MAX_CONTENT_LENGTH", 2_000_000),
		AutoTriggerThreshold: config.GetEnvInt("AUTO_TRIGGER_THRESHOLD", process.DefaultAutoTriggerThreshold),
		WorkerConcurrency:    config.GetEnvInt("WORKER_CONCURRENCY", 8),
		SchedulerTickSeconds: config.GetEnvInt("SCHEDULER_TICK_SECONDS", 30),
	}
}

// Deps bundles every collaborator a CLI command or the worker daemon needs.
// Repositories are built against the pool; internal/usecase/process.Service
// rebuilds its own Repos against a live *sql.Tx per call (see RepoFactory).
type Deps struct {
	DB     *sql.DB
	Config Config
	Log    *slog.Logger

	Sources      repository.SourceRepository
	SourceStates repository.SourceStateRepository
	Checks       repository.SourceCheckRepository
	Leases       repository.SourceLeaseRepository
	URLTracking  repository.URLTrackingRepository
	Articles     repository.ArticleRepository
	SimHash      repository.SimHashRepository
	Workflow     repository.WorkflowTriggerRepository

	HTTPClient   *httpclient.Client
	Tiers        map[entity.Tier]fetch.Tier
	Processor    *process.Service
	Orchestrator *fetch.Orchestrator
	Sourcing     *source.Service
}

// repoSet is the conn-agnostic constructor internal/usecase/process.Service
// uses to rebuild a Repos bundle against either db (read-only paths) or a
// live *sql.Tx (the transactional persist path).
func repoSet(conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) process.Repos {
	return process.Repos{
		Articles: pgRepo.NewArticleRepo(conn),
		SimHash:  pgRepo.NewSimHashRepo(conn),
		URLTrack: pgRepo.NewURLTrackingRepo(conn),
		Workflow: pgRepo.NewWorkflowTriggerRepo(conn),
	}
}

// Build opens the database, runs migrations, and wires every repository,
// tier, and use-case Deps exposes. holder identifies this process in the
// source_leases claim table; callers typically pass
// "<hostname>:<pid>" or a fixed name for single-instance deployments.
func Build(holder string) (*Deps, error) {
	return build(holder, false)
}

// BuildDryRun wires the same Deps as Build, except the Processor evaluates
// the full validate/dedup/score pipeline without persisting anything,
// matching the `collect --dry-run`/`rescore --dry-run` flags.
func BuildDryRun(holder string) (*Deps, error) {
	return build(holder, true)
}

func build(holder string, dryRun bool) (*Deps, error) {
	log := logging.NewLogger()
	cfg := LoadConfig()

	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Every non-transactional repo reads/writes through a circuit breaker so
	// a struggling database trips open instead of piling up blocked
	// connections under the pool's cap. The Processor's own transactional
	// path (repoSet, below) still runs straight against database/a live
	// *sql.Tx: wrapping a transaction in the breaker would let one slow
	// statement mid-transaction abort sibling statements the transaction
	// already depends on.
	dbProtected := circuitbreaker.NewDBCircuitBreaker(database)

	sources := pgRepo.NewSourceRepo(dbProtected)
	sourceStates := pgRepo.NewSourceStateRepo(dbProtected)
	checks := pgRepo.NewSourceCheckRepo(dbProtected)
	leases := pgRepo.NewSourceLeaseRepo(dbProtected)
	urlTracking := pgRepo.NewURLTrackingRepo(dbProtected)
	articles := pgRepo.NewArticleRepo(dbProtected)
	simhash := pgRepo.NewSimHashRepo(dbProtected)
	workflow := pgRepo.NewWorkflowTriggerRepo(dbProtected)

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	robotsClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	robotsFetcher := robots.NewFetcher(robotsClient, cfg.UserAgent, robots.NewTTLCache(robots.DefaultTTL))
	httpClient := httpclient.NewClient(transport, robotsFetcher, cfg.UserAgent)

	contentFetchCfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		log.Warn("content fetch configuration invalid, full-text fallback disabled", slog.Any("error", err))
		contentFetchCfg = fetcher.DefaultConfig()
		contentFetchCfg.Enabled = false
	}
	var contentFetcher fetch.ContentFetcher
	if contentFetchCfg.Enabled {
		contentFetcher = fetcher.NewReadabilityFetcher(contentFetchCfg)
	}

	tiers := map[entity.Tier]fetch.Tier{
		entity.TierRSS:        scraper.NewRSSFetcher(httpClient),
		entity.TierStructured: scraper.NewModernScraper(httpClient, contentFetcher),
		entity.TierLegacy:     scraper.NewLegacyHTMLScraper(httpClient),
	}

	processor := process.NewService(database, repoSet, cfg.AutoTriggerThreshold, dryRun, log)
	orchestrator := fetch.NewOrchestrator(sources, sourceStates, checks, leases, urlTracking, processor, tiers, holder)
	orchestrator.Log = log

	sourcing := source.NewService(sources, sourceStates, cfg.RateLimitPerMinute, log)

	return &Deps{
		DB:           database,
		Config:       cfg,
		Log:          log,
		Sources:      sources,
		SourceStates: sourceStates,
		Checks:       checks,
		Leases:       leases,
		URLTracking:  urlTracking,
		Articles:     articles,
		SimHash:      simhash,
		Workflow:     workflow,
		HTTPClient:   httpClient,
		Tiers:        tiers,
		Processor:    processor,
		Orchestrator: orchestrator,
		Sourcing:     sourcing,
	}, nil
}

// Close releases the database pool. Callers defer this right after Build.
func (d *Deps) Close() {
	if err := d.DB.Close(); err != nil {
		d.Log.Error("failed to close database", slog.Any("error", err))
	}
}

// Holder returns a per-process lease identity: hostname:pid, falling back
// to just the pid if the hostname can't be resolved.
func Holder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
