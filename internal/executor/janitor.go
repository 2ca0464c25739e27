package executor

import (
	"log/slog"
	"sync"
	"time"

	"postflow/internal/repository"
)

// Janitor deletes terminal jobs older than the retention window on a
// fixed interval, keeping the jobs table from growing without bound.
type Janitor struct {
	jobs      *repository.JobRepository
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// JanitorConfig contains cleanup configuration
type JanitorConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// NewJanitor creates a job cleanup service
func NewJanitor(jobs *repository.JobRepository, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	return &Janitor{
		jobs:      jobs,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		logger:    logger.With("component", "janitor"),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the cleanup loop
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.run()
}

// Stop stops the cleanup loop
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *Janitor) cleanup() {
	cutoff := time.Now().Add(-j.retention)
	deleted, err := j.jobs.DeleteTerminalOlderThan(cutoff)
	if err != nil {
		j.logger.Error("job cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		j.logger.Info("deleted old terminal jobs", "count", deleted, "cutoff", cutoff)
	}
}
