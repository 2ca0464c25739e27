package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"postflow/internal/metrics"
)

// ReaperConfig contains redelivery settings
type ReaperConfig struct {
	Interval time.Duration
}

// Reaper periodically returns expired in-flight messages to the ready set,
// implementing the visibility-timeout half of at-least-once delivery.
type Reaper struct {
	storage *BoltStorage
	cfg     ReaperConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewReaper creates a new reaper service
func NewReaper(storage *BoltStorage, cfg ReaperConfig, logger *slog.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Reaper{
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start starts the reap loop
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("queue reaper started", "interval", r.cfg.Interval)
}

// Stop stops the reaper and waits for the loop to finish
func (r *Reaper) Stop() {
	close(r.done)
	r.wg.Wait()
	r.logger.Info("queue reaper stopped")
}

func (r *Reaper) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.run(ctx)
		}
	}
}

func (r *Reaper) run(ctx context.Context) {
	reaped, err := r.storage.Reap(ctx, time.Now())
	if err != nil {
		r.logger.Error("failed to reap in-flight messages", "error", err)
		return
	}

	if reaped > 0 {
		metrics.AddReaped(reaped)
		r.logger.Warn("redelivered expired in-flight messages", "count", reaped)
	}
}
