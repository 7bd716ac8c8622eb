package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBeat_ScheduleSubmitsPlanTick(t *testing.T) {
	pool := NewPool(2, 8, fastRetryConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	var planRuns int32
	beat := NewBeat(time.UTC, pool, nil)
	beat.Plan = func(ctx context.Context) error {
		atomic.AddInt32(&planRuns, 1)
		return nil
	}

	cfg := DefaultConfig()
	cfg.PlanInterval = 50 * time.Millisecond

	if err := beat.Schedule(cfg); err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	beat.Start()
	defer beat.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&planRuns) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected at least one plan tick to run")
}

func TestBeat_NilCallbacksAreNotScheduled(t *testing.T) {
	pool := NewPool(1, 8, fastRetryConfig(), nil)
	beat := NewBeat(time.UTC, pool, nil)

	cfg := DefaultConfig()
	if err := beat.Schedule(cfg); err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}

	if len(beat.cron.Entries()) != 0 {
		t.Errorf("expected no cron entries when all callbacks are nil, got %d", len(beat.cron.Entries()))
	}
}

func TestBeat_ScheduleRegistersOnlySetCallbacks(t *testing.T) {
	pool := NewPool(1, 8, fastRetryConfig(), nil)
	beat := NewBeat(time.UTC, pool, nil)
	beat.Plan = func(ctx context.Context) error { return nil }
	beat.Maintain = func(ctx context.Context) error { return nil }

	cfg := DefaultConfig()
	if err := beat.Schedule(cfg); err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}

	if len(beat.cron.Entries()) != 2 {
		t.Errorf("expected 2 cron entries, got %d", len(beat.cron.Entries()))
	}
}
