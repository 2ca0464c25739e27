package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"postflow/internal/metrics"
	"postflow/internal/queue"
)

// Pool runs a fixed set of workers against the queue. Each worker pulls
// at most one message at a time and runs it end to end before polling
// again; fairness across task classes comes from the queue's due-time
// ordering plus the per-class limits.
type Pool struct {
	q        queue.Queue
	executor *Executor
	limits   *Limits
	workers  int
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// PoolConfig contains worker pool configuration
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
}

// NewPool creates a worker pool
func NewPool(q queue.Queue, exec *Executor, limits *Limits, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Pool{
		q:        q,
		executor: exec,
		limits:   limits,
		workers:  cfg.Workers,
		interval: cfg.PollInterval,
		logger:   logger.With("component", "pool"),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the pool workers
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop stops the pool gracefully, waiting for in-flight tasks
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-p.stopCh:
			logger.Debug("worker stopped by signal")
			return
		case <-ticker.C:
			p.pollOne(ctx, logger)
		}
	}
}

// pollOne claims and runs at most one message
func (p *Pool) pollOne(ctx context.Context, logger *slog.Logger) {
	classes := p.limits.Admissible()
	if len(classes) == 0 {
		return
	}

	msg, err := p.q.Dequeue(ctx, classes...)
	if err != nil {
		logger.Error("failed to dequeue", "error", err)
		return
	}
	if msg == nil {
		return
	}

	if !p.limits.Acquire(msg.Class) {
		// Slot taken between Admissible and now; give it back quickly.
		p.q.Nack(ctx, msg.ID, time.Second)
		return
	}
	defer p.limits.Release(msg.Class)

	if delay := p.limits.RateDelay(msg.Class); delay > 0 {
		metrics.IncTaskDeferred("rate_limited")
		p.q.Nack(ctx, msg.ID, delay)
		return
	}

	p.executor.Handle(ctx, msg)
}
