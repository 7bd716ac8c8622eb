// Command worker runs the long-running ingestion scheduler: a Beat ticking
// the four periodic maintenance entries onto a priority-queued Pool, plus an
// HTTP health/metrics server. One-off operator commands (init, collect,
// sync-sources, rescore, stats) live in cmd/ingestd instead.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"catchup-feed/internal/app"
	"catchup-feed/internal/infra/notifier"
	worker "catchup-feed/internal/infra/worker"
	"catchup-feed/internal/observability/metrics"
	"catchup-feed/internal/observability/slo"
	"catchup-feed/internal/observability/tracing"
	"catchup-feed/internal/resilience/retry"
	"catchup-feed/internal/usecase/notify"
	"catchup-feed/internal/usecase/process"
)

// sloSampleWindow bounds how many of the most recent SourceCheck rows per
// source feed the recompute_source_health pass's SLO gauge update.
const sloSampleWindow = 20

// checkRetentionWindow bounds how long SourceCheck audit rows are kept
// before the maintenance pass prunes them.
const checkRetentionWindow = 90 * 24 * time.Hour

// planBatchSize caps how many due sources a single planning tick enqueues,
// so one slow tick can't flood the pool past its queue capacity.
const planBatchSize = 200

func main() {
	logger := initLogger()

	shutdownTracer := tracing.InitTracer("catchup-feed-worker")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	deps, err := app.Build(app.Holder())
	if err != nil {
		logger.Error("failed to wire dependencies", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close()

	workerMetrics := worker.NewWorkerMetrics()
	workerMetrics.MustRegister()

	workerConfig, _ := worker.LoadConfigFromEnv(logger, workerMetrics)

	loc, err := time.LoadLocation(workerConfig.Timezone)
	if err != nil {
		logger.Warn("invalid worker timezone, falling back to UTC", slog.String("timezone", workerConfig.Timezone))
		loc = time.UTC
	}

	notifyService := buildNotifyService(logger, *workerConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(workerConfig.PoolConcurrency, workerConfig.QueueCapacity, retry.WorkerPoolConfig(), logger)
	pool.Start(ctx)

	beat := worker.NewBeat(loc, pool, logger)
	beat.Plan = planDueSources(deps, pool, notifyService, workerMetrics)
	beat.RecomputeHealth = recomputeSourceHealth(deps)
	beat.Maintain = runMaintenance(deps)
	beat.CompactSimHashes = compactSimHashes(deps)

	if err := beat.Schedule(*workerConfig); err != nil {
		logger.Error("failed to schedule beat entries", slog.Any("error", err))
		os.Exit(1)
	}
	beat.Start()

	healthServer := worker.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	healthServer.SetReady(true)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err.Error() != "http: Server closed" {
			logger.Error("health server exited", slog.Any("error", err))
		}
	}()

	// Separate metrics/channel-health server on METRICS_PORT (default 9090),
	// distinct from the liveness/readiness probe above on HealthPort.
	startMetricsServer(ctx, logger, notifyService)

	logger.Info("worker started",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("pool_concurrency", workerConfig.PoolConcurrency))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	beat.Stop()
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := notifyService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("notify service shutdown timed out", slog.Any("error", err))
	}

	logger.Info("worker stopped")
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildNotifyService wires the Discord/Slack channels named in
// workerConfig's environment-driven config into a single notify.Service. A
// channel with Enabled=false from loadDiscordConfig/loadSlackConfig is still
// registered, since notify.Service skips disabled channels on dispatch and
// reports them in GetChannelHealth.
func buildNotifyService(logger *slog.Logger, cfg worker.WorkerConfig) notify.Service {
	channels := []notify.Channel{
		notify.NewDiscordChannel(loadDiscordConfig(logger)),
		notify.NewSlackChannel(loadSlackConfig(logger)),
	}
	return notify.NewService(channels, cfg.NotifyMaxConcurrent)
}

// loadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: Boolean flag to enable Discord notifications (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}
	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Discord webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Host != "discord.com" {
		logger.Warn("invalid Discord webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("invalid Discord webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: Boolean flag to enable Slack notifications (default: false)
//   - SLACK_WEBHOOK_URL: Slack webhook URL (required if enabled)
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}
	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Slack webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Host != "hooks.slack.com" {
		logger.Warn("invalid Slack webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("invalid Slack webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// planDueSources implements the plan_due_sources beat entry:
// list sources past their next_run_at and enqueue one check_source task per
// source onto the pool's source_checks queue, so the planning tick itself
// stays fast and the checks run with the pool's full concurrency.
func planDueSources(deps *app.Deps, pool *worker.Pool, notifyService notify.Service, metrics *worker.WorkerMetrics) func(context.Context) error {
	return func(ctx context.Context) error {
		due, err := deps.Sourcing.DueSources(ctx, time.Now(), planBatchSize)
		if err != nil {
			return err
		}
		for _, sourceID := range due {
			id := sourceID
			err := pool.Submit(worker.QueueSourceChecks, "check_source", func(ctx context.Context) error {
				return checkSourceAndNotify(ctx, deps, notifyService, metrics, id)
			})
			if err != nil {
				deps.Log.Warn("dropped check_source task, queue full", slog.Int64("source_id", id))
			}
		}
		return nil
	}
}

// checkSourceAndNotify runs one source's check_source cycle and dispatches a
// notification for every article it newly stored.
func checkSourceAndNotify(ctx context.Context, deps *app.Deps, notifyService notify.Service, metrics *worker.WorkerMetrics, sourceID int64) error {
	start := time.Now()
	result, err := deps.Orchestrator.CheckSource(ctx, sourceID)
	duration := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordJobRun("failure")
		metrics.RecordJobDuration(duration)
		return err
	}
	metrics.RecordJobRun("success")
	metrics.RecordJobDuration(duration)
	metrics.RecordFeedsProcessed(1)
	metrics.RecordLastSuccess()

	if result.ArticlesNew == 0 {
		return nil
	}

	src, err := deps.Sourcing.Get(ctx, sourceID)
	if err != nil || src == nil {
		deps.Log.Warn("could not load source for notification", slog.Int64("source_id", sourceID), slog.Any("error", err))
		return nil
	}

	for _, outcome := range result.Outcomes {
		if outcome.Outcome != process.OutcomeStored || outcome.Article == nil {
			continue
		}
		_ = notifyService.NotifyNewArticle(ctx, outcome.Article, src)
	}
	return nil
}

// recomputeSourceHealth implements the hourly recompute_source_health beat
// entry: re-derive every source's Health from ConsecutiveFailures, catching
// sources whose state was changed outside the normal check_source path.
func recomputeSourceHealth(deps *app.Deps) func(context.Context) error {
	return func(ctx context.Context) error {
		sources, err := deps.Sourcing.List(ctx)
		if err != nil {
			return err
		}
		var totalChecks, failedChecks int
		var totalArticles int64
		var durations []time.Duration
		for _, src := range sources {
			state, err := deps.SourceStates.Get(ctx, src.ID)
			if err != nil {
				deps.Log.Warn("recompute health: get state failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
				continue
			}
			if state == nil {
				continue
			}
			state.RecomputeHealth()
			if err := deps.SourceStates.Upsert(ctx, state); err != nil {
				deps.Log.Warn("recompute health: upsert failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
			}

			checks, err := deps.Checks.ListRecent(ctx, src.ID, sloSampleWindow)
			if err != nil {
				deps.Log.Warn("recompute health: list checks failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
				continue
			}
			for _, c := range checks {
				totalChecks++
				if c.ErrorKind != "" {
					failedChecks++
				}
				if c.FinishedAt != nil {
					durations = append(durations, c.FinishedAt.Sub(c.StartedAt))
				}
			}

			if count, err := deps.Articles.CountBySource(ctx, src.ID); err != nil {
				deps.Log.Warn("recompute health: count articles failed", slog.Int64("source_id", src.ID), slog.Any("error", err))
			} else {
				totalArticles += count
			}
		}
		updateSLOGauges(totalChecks, failedChecks, durations)
		metrics.UpdateSourcesTotal(len(sources))
		metrics.UpdateArticlesTotal(int(totalArticles))
		return nil
	}
}

// updateSLOGauges rolls the fleet-wide sample of recent SourceCheck rows
// gathered by recomputeSourceHealth into the service-level-objective
// gauges: availability/error-rate from the success/failure ratio, p95/p99
// latency from the check durations in the same sample.
func updateSLOGauges(total, failed int, durations []time.Duration) {
	if total > 0 {
		slo.UpdateAvailability(1 - float64(failed)/float64(total))
		slo.UpdateErrorRate(float64(failed) / float64(total))
	}
	if len(durations) == 0 {
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	slo.UpdateLatencyP95(percentileDuration(durations, 0.95).Seconds())
	slo.UpdateLatencyP99(percentileDuration(durations, 0.99).Seconds())
}

func percentileDuration(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// runMaintenance implements the daily maintenance beat entry: prune
// SourceCheck rows past the retention window.
func runMaintenance(deps *app.Deps) func(context.Context) error {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-checkRetentionWindow)
		pruned, err := deps.Checks.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		deps.Log.Info("maintenance: pruned source checks", slog.Int64("count", pruned))

		poolStats := deps.DB.Stats()
		metrics.UpdateDBConnectionStats(poolStats.InUse, poolStats.Idle)
		return nil
	}
}

// compactSimHashes implements the weekly compact_simhashes beat entry:
// delete SimHash band rows whose article no longer exists.
func compactSimHashes(deps *app.Deps) func(context.Context) error {
	return func(ctx context.Context) error {
		removed, err := deps.SimHash.CompactOrphans(ctx)
		if err != nil {
			return err
		}
		deps.Log.Info("compacted simhash index", slog.Int64("orphans_removed", removed))
		return nil
	}
}
