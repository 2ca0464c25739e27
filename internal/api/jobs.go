package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"postflow/internal/models"
)

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := models.JobListFilter{
		CampaignID: r.URL.Query().Get("campaign_id"),
		AccountID:  r.URL.Query().Get("account_id"),
		Status:     models.JobStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}

	jobs, err := s.jobs.List(filter)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	s.sendJSON(w, http.StatusOK, jobs)
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get job", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job == nil {
		s.sendError(w, http.StatusNotFound, "Job not found")
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// handleRetryJob handles POST /api/v1/jobs/{id}/retry
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.dispatcher.RetryJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to retry job")
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// handleJobStatistics handles GET /api/v1/jobs/statistics
func (s *Server) handleJobStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dispatcher.Statistics(r.Context(), r.URL.Query().Get("campaign_id"))
	if err != nil {
		s.logger.Error("failed to get statistics", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// queryInt reads an integer query parameter with a default
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
