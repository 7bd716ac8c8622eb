package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Beat drives four independent `@every` entries off a single cron.Cron: a
// frequent due_sources planning tick, and three slower maintenance ticks.
// Each entry submits its work to a Pool queue rather than running inline, so
// a slow maintenance pass can never delay the next planning tick.
type Beat struct {
	cron *cron.Cron
	pool *Pool
	log  *slog.Logger

	Plan             func(ctx context.Context) error
	RecomputeHealth  func(ctx context.Context) error
	Maintain         func(ctx context.Context) error
	CompactSimHashes func(ctx context.Context) error
}

// NewBeat builds a Beat in the given timezone, submitting its ticks onto pool.
// Any of the four callback fields may be left nil; a nil callback's entry is
// simply not scheduled.
func NewBeat(loc *time.Location, pool *Pool, log *slog.Logger) *Beat {
	if log == nil {
		log = slog.Default()
	}
	return &Beat{
		cron: cron.New(cron.WithLocation(loc)),
		pool: pool,
		log:  log,
	}
}

// Schedule registers the four periodic maintenance entries using the
// intervals from cfg (plan every PlanInterval, health recompute every
// HealthRecomputeInterval, maintenance every MaintenanceInterval, SimHash
// compaction every SimHashCompactionInterval).
func (b *Beat) Schedule(cfg WorkerConfig) error {
	entries := []struct {
		name     string
		interval time.Duration
		queue    QueueName
		fn       func(ctx context.Context) error
	}{
		{"plan_due_sources", cfg.PlanInterval, QueueSourceChecks, b.Plan},
		{"recompute_source_health", cfg.HealthRecomputeInterval, QueueDefault, b.RecomputeHealth},
		{"maintenance", cfg.MaintenanceInterval, QueueDefault, b.Maintain},
		{"compact_simhashes", cfg.SimHashCompactionInterval, QueueDefault, b.CompactSimHashes},
	}

	for _, e := range entries {
		if e.fn == nil {
			continue
		}
		spec := "@every " + e.interval.String()
		name, queue, fn := e.name, e.queue, e.fn
		_, err := b.cron.AddFunc(spec, func() {
			if submitErr := b.pool.Submit(queue, name, fn); submitErr != nil {
				b.log.Warn("beat tick dropped, pool queue full",
					slog.String("entry", name),
					slog.Any("error", submitErr))
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Start begins ticking. It does not block.
func (b *Beat) Start() {
	b.cron.Start()
}

// Stop halts future ticks and waits for any already-running entry functions
// to return (entry bodies here only submit to the Pool, so this returns
// quickly; the Pool itself is stopped separately).
func (b *Beat) Stop() {
	ctx := b.cron.Stop()
	<-ctx.Done()
}
