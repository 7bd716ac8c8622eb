package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"catchup-feed/internal/resilience/retry"
)

// Pool is a bounded set of goroutine workers draining three named queues
// (source_checks, workflows, default) instead of one shared channel, so a
// flood of low-priority workflow-trigger deliveries can't starve the
// higher-priority source-check tasks the Beat enqueues every 30s.
//
// On every iteration a worker first takes a waiting source_checks task if
// there is one. Only when source_checks is empty does it wait on all three
// queues at once and take whichever task is ready; workflows and default
// have no order between them (select picks at random among ready queues).
type Pool struct {
	queues      map[QueueName]*queue
	concurrency int
	retryConfig retry.Config
	log         *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPool builds a Pool with the three named queues, each buffered to
// capacity. retryConfig governs per-task retry-with-backoff on failure.
func NewPool(concurrency, capacity int, retryConfig retry.Config, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		queues: map[QueueName]*queue{
			QueueSourceChecks: newQueue(QueueSourceChecks, capacity),
			QueueWorkflows:    newQueue(QueueWorkflows, capacity),
			QueueDefault:      newQueue(QueueDefault, capacity),
		},
		concurrency: concurrency,
		retryConfig: retryConfig,
		log:         log,
		stopCh:      make(chan struct{}),
	}
}

// Start spawns the worker goroutines. It returns immediately; call Stop (or
// cancel ctx) to drain and shut them down.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Submit enqueues fn under name on the given queue. It does not block: a
// full queue returns an error immediately rather than stalling the caller.
func (p *Pool) Submit(q QueueName, name string, fn TaskFunc) error {
	target, ok := p.queues[q]
	if !ok {
		target = p.queues[QueueDefault]
	}
	return target.submit(task{name: name, run: fn})
}

// Stop signals all workers to finish their current task and exit, then
// waits for them to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	sourceChecks := p.queues[QueueSourceChecks].ch
	workflows := p.queues[QueueWorkflows].ch
	defaultQ := p.queues[QueueDefault].ch

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case t := <-sourceChecks:
			p.execute(ctx, id, t)
		default:
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case t := <-sourceChecks:
				p.execute(ctx, id, t)
			case t := <-workflows:
				p.execute(ctx, id, t)
			case t := <-defaultQ:
				p.execute(ctx, id, t)
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, t task) {
	start := time.Now()
	err := retry.WithBackoff(ctx, p.retryConfig, func() error {
		return t.run(ctx)
	})
	duration := time.Since(start)

	if err != nil {
		p.log.Error("pool task failed",
			slog.Int("worker_id", workerID),
			slog.String("task", t.name),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return
	}
	p.log.Debug("pool task completed",
		slog.Int("worker_id", workerID),
		slog.String("task", t.name),
		slog.Duration("duration", duration))
}
