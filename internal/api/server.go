package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"postflow/internal/config"
	"postflow/internal/dispatch"
	"postflow/internal/queue"
	"postflow/internal/repository"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	campaigns *repository.CampaignRepository
	jobs      *repository.JobRepository
	accounts  *repository.AccountRepository
	proxies   *repository.ProxyRepository
	profiles  *repository.ProfileRepository

	dispatcher *dispatch.Dispatcher
	queue      queue.Queue

	config    *config.APIConfig
	logger    *slog.Logger
	startTime time.Time
}

// Repositories bundles the entity stores the API serves
type Repositories struct {
	Campaigns *repository.CampaignRepository
	Jobs      *repository.JobRepository
	Accounts  *repository.AccountRepository
	Proxies   *repository.ProxyRepository
	Profiles  *repository.ProfileRepository
}

// NewServer creates a new API server
func NewServer(repos Repositories, dispatcher *dispatch.Dispatcher, q queue.Queue, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		campaigns:  repos.Campaigns,
		jobs:       repos.Jobs,
		accounts:   repos.Accounts,
		proxies:    repos.Proxies,
		profiles:   repos.Profiles,
		dispatcher: dispatcher,
		queue:      q,
		config:     cfg,
		logger:     logger.With("component", "api"),
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Put("/{id}", s.handleUpdateCampaign)
			r.Delete("/{id}", s.handleDeleteCampaign)
			r.Post("/{id}/start", s.handleStartCampaign)
			r.Post("/{id}/pause", s.handlePauseCampaign)
			r.Post("/{id}/resume", s.handleResumeCampaign)
			r.Post("/{id}/cancel", s.handleCancelCampaign)
			r.Post("/{id}/retry-failed", s.handleRetryFailedJobs)
			r.Post("/{id}/batch-process", s.handleBatchProcess)
			r.Get("/{id}/statistics", s.handleCampaignStatistics)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/statistics", s.handleJobStatistics)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/retry", s.handleRetryJob)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Put("/{id}", s.handleUpdateAccount)
			r.Delete("/{id}", s.handleDeleteAccount)
			r.Post("/{id}/test", s.handleTestAccount)
		})

		r.Route("/proxies", func(r chi.Router) {
			r.Get("/", s.handleListProxies)
			r.Post("/", s.handleCreateProxy)
			r.Post("/check-all", s.handleCheckAllProxies)
			r.Get("/{id}", s.handleGetProxy)
			r.Put("/{id}", s.handleUpdateProxy)
			r.Delete("/{id}", s.handleDeleteProxy)
			r.Post("/{id}/check", s.handleCheckProxy)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Post("/", s.handleCreateProfile)
			r.Get("/{id}", s.handleGetProfile)
			r.Put("/{id}", s.handleUpdateProfile)
			r.Delete("/{id}", s.handleDeleteProfile)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/activity", s.handleActivity)
		})

		r.Get("/queue", s.handleQueueStats)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the chi router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string       `json:"status"`
	Uptime string       `json:"uptime"`
	Queue  *queue.Stats `json:"queue,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}

	if stats, err := s.queue.Stats(r.Context()); err == nil {
		resp.Queue = stats
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleQueueStats handles GET /api/v1/queue
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get queue stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
