package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postflow/internal/api"
	"postflow/internal/config"
	"postflow/internal/db"
	"postflow/internal/dispatch"
	"postflow/internal/executor"
	"postflow/internal/metrics"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/secrets"
	"postflow/internal/uploader"
)

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger

	database *db.DB
	queue    queue.Queue
	reaper   *queue.Reaper

	dispatcher *dispatch.Dispatcher
	pool       *executor.Pool
	janitor    *executor.Janitor

	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
}

// New creates the application with all components wired
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	box, err := secrets.NewBox(cfg.Storage.SecretsKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secrets key: %w", err)
	}

	storage, err := queue.NewBoltStorage(cfg.Storage.QueuePath, cfg.Queue.VisibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	campaigns := repository.NewCampaignRepository(database.DB)
	jobs := repository.NewJobRepository(database.DB)
	accounts := repository.NewAccountRepository(database.DB, box)
	proxies := repository.NewProxyRepository(database.DB, box)
	profiles := repository.NewProfileRepository(database.DB)

	dispatcher := dispatch.NewDispatcher(
		campaigns,
		jobs,
		dispatch.NewAllocator(accounts),
		dispatch.NewDistributor(),
		storage,
		logger,
	)

	agent := uploader.NewAgent(uploader.AgentConfig{
		BaseURL: cfg.Agent.BaseURL,
		APIKey:  cfg.Agent.APIKey,
		Timeout: cfg.Agent.Timeout,
	})

	retryPolicy := dispatch.NewRetryPolicy(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	exec := executor.New(
		jobs, campaigns, accounts, proxies, profiles,
		storage,
		executor.Collaborators{
			Uploader:  agent,
			Tester:    agent,
			Checker:   agent,
			Processor: agent,
		},
		retryPolicy,
		executor.Config{
			SoftTimeLimit: cfg.Executor.SoftTimeLimit,
			HardTimeLimit: cfg.Executor.HardTimeLimit,
		},
		logger,
	)

	limits := executor.NewLimits(classLimits(cfg.Queue.ClassLimits))
	pool := executor.NewPool(storage, exec, limits, executor.PoolConfig{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
	}, logger)

	janitor := executor.NewJanitor(jobs, executor.JanitorConfig{
		Retention: cfg.Cleanup.Retention,
		Interval:  cfg.Cleanup.Interval,
	}, logger)

	reaper := queue.NewReaper(storage, queue.ReaperConfig{
		Interval: cfg.Queue.ReapInterval,
	}, logger)

	apiServer := api.NewServer(api.Repositories{
		Campaigns: campaigns,
		Jobs:      jobs,
		Accounts:  accounts,
		Proxies:   proxies,
		Profiles:  profiles,
	}, dispatcher, storage, &cfg.API, logger)

	app := &App{
		config:     cfg,
		logger:     logger,
		database:   database,
		queue:      storage,
		reaper:     reaper,
		dispatcher: dispatcher,
		pool:       pool,
		janitor:    janitor,
		apiServer:  apiServer,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		app.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger)
		app.collector = metrics.NewCollector(m, queueStatsAdapter{storage}, cfg.Metrics.CollectInterval, logger)
	}

	return app, nil
}

// Run starts all components and blocks until a signal or a fatal error
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting postflow",
		"api_addr", a.config.API.ListenAddr,
		"workers", a.config.Queue.Workers,
		"database", a.config.Storage.DatabasePath,
		"queue", a.config.Storage.QueuePath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.pool.Start(ctx)
	a.reaper.Start(ctx)
	a.janitor.Start()
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop taking new work first; in-flight uploads finish or nack.
	a.pool.Stop()
	a.reaper.Stop()
	a.janitor.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.queue.Close(); err != nil {
		a.logger.Error("queue close error", "error", err)
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// classLimits converts the config map keyed by class name into typed limits
func classLimits(cfg map[string]config.ClassLimitConfig) map[queue.Class]executor.ClassLimit {
	limits := make(map[queue.Class]executor.ClassLimit, len(cfg))
	for name, limit := range cfg {
		limits[queue.Class(name)] = executor.ClassLimit{
			MaxInFlight: limit.MaxInFlight,
			PerMinute:   limit.PerMinute,
		}
	}
	return limits
}

// queueStatsAdapter narrows queue stats to what the collector needs
type queueStatsAdapter struct {
	q queue.Queue
}

func (a queueStatsAdapter) Stats(ctx context.Context) (*metrics.QueueStats, error) {
	stats, err := a.q.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.QueueStats{
		Ready:    int(stats.Ready),
		Due:      int(stats.Due),
		InFlight: int(stats.InFlight),
	}, nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
