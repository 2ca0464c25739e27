package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// QueueStats contains queue depth figures for the gauges
type QueueStats struct {
	Ready    int
	Due      int
	InFlight int
}

// QueueStatsProvider provides queue statistics for metrics
type QueueStatsProvider interface {
	Stats(ctx context.Context) (*QueueStats, error)
}

// Collector updates the queue and system gauges on a fixed interval
type Collector struct {
	metrics    *Metrics
	queueStats QueueStatsProvider
	interval   time.Duration
	startTime  time.Time
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, queueStats QueueStatsProvider, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &Collector{
		metrics:    m,
		queueStats: queueStats,
		interval:   interval,
		startTime:  time.Now(),
		logger:     logger.With("component", "metrics_collector"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.queueStats == nil {
		return
	}

	stats, err := c.queueStats.Stats(ctx)
	if err != nil {
		c.logger.Warn("failed to collect queue stats", "error", err)
		return
	}

	c.metrics.QueueReady.Set(float64(stats.Ready))
	c.metrics.QueueDue.Set(float64(stats.Due))
	c.metrics.QueueInFlight.Set(float64(stats.InFlight))
}
