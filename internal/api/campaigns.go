package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"postflow/internal/dispatch"
	"postflow/internal/models"
)

// CampaignRequest is the request body for creating or updating a campaign
type CampaignRequest struct {
	Name            string                 `json:"name"`
	VideoPath       string                 `json:"video_path"`
	CaptionTemplate string                 `json:"caption_template"`
	Selection       models.SelectionPolicy `json:"selection"`
	Schedule        models.ScheduleWindow  `json:"schedule"`
}

func (req *CampaignRequest) validate() error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	if req.VideoPath == "" {
		return errors.New("video_path is required")
	}
	if err := req.Selection.Validate(); err != nil {
		return err
	}
	return req.Schedule.Validate()
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	campaigns, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, campaigns)
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign := &models.Campaign{
		Name:            req.Name,
		Status:          models.CampaignDraft,
		VideoPath:       req.VideoPath,
		CaptionTemplate: req.CaptionTemplate,
		Selection:       req.Selection,
		Schedule:        req.Schedule,
	}

	if err := s.campaigns.Create(campaign); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.logger.Info("campaign created", "campaign_id", campaign.ID, "name", campaign.Name)
	s.sendJSON(w, http.StatusCreated, campaign)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

// handleUpdateCampaign handles PUT /api/v1/campaigns/{id}. Only draft and
// scheduled campaigns can change their payload or policy.
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignScheduled {
		s.sendError(w, http.StatusConflict, "Only draft or scheduled campaigns can be updated")
		return
	}

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign.Name = req.Name
	campaign.VideoPath = req.VideoPath
	campaign.CaptionTemplate = req.CaptionTemplate
	campaign.Selection = req.Selection
	campaign.Schedule = req.Schedule

	if err := s.campaigns.Update(campaign); err != nil {
		s.logger.Error("failed to update campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if campaign.Status == models.CampaignRunning {
		s.sendError(w, http.StatusConflict, "Cancel the campaign before deleting it")
		return
	}

	if err := s.campaigns.Delete(campaign.ID); err != nil {
		s.logger.Error("failed to delete campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleStartCampaign handles POST /api/v1/campaigns/{id}/start
func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to start campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handlePauseCampaign handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.dispatcher.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to pause campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

// handleResumeCampaign handles POST /api/v1/campaigns/{id}/resume
func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.dispatcher.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to resume campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, campaign)
}

// handleCancelCampaign handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to cancel campaign")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handleRetryFailedJobs handles POST /api/v1/campaigns/{id}/retry-failed
func (s *Server) handleRetryFailedJobs(w http.ResponseWriter, r *http.Request) {
	retried, err := s.dispatcher.RetryAllFailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDispatchError(w, err, "Failed to retry jobs")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"retried": len(retried),
		"jobs":    retried,
	})
}

// BatchProcessRequest is the request body for POST /campaigns/{id}/batch-process
type BatchProcessRequest struct {
	Count int `json:"count"`
}

// handleBatchProcess handles POST /api/v1/campaigns/{id}/batch-process
func (s *Server) handleBatchProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	var req BatchProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count <= 0 {
		s.sendError(w, http.StatusBadRequest, "count must be positive")
		return
	}

	if err := s.dispatcher.EnqueueBatchProcess(r.Context(), id, req.Count); err != nil {
		s.logger.Error("failed to enqueue batch process", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to queue batch processing")
		return
	}

	s.sendJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"count":  req.Count,
	})
}

// handleCampaignStatistics handles GET /api/v1/campaigns/{id}/statistics
func (s *Server) handleCampaignStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if campaign == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	stats, err := s.dispatcher.Statistics(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get statistics", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// sendDispatchError maps dispatch sentinel errors to HTTP status codes
func (s *Server) sendDispatchError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, dispatch.ErrCampaignNotFound):
		s.sendError(w, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, dispatch.ErrJobNotFound):
		s.sendError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, dispatch.ErrNoEligibleAccounts):
		s.sendError(w, http.StatusConflict, "No eligible accounts match the selection policy")
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		s.sendError(w, http.StatusConflict, "Campaign is already running")
	case errors.Is(err, dispatch.ErrNotRunning):
		s.sendError(w, http.StatusConflict, "Campaign is not running")
	case errors.Is(err, dispatch.ErrNotPaused):
		s.sendError(w, http.StatusConflict, "Campaign is not paused")
	case errors.Is(err, dispatch.ErrNotCancellable):
		s.sendError(w, http.StatusConflict, "Campaign cannot be cancelled in its current state")
	case errors.Is(err, dispatch.ErrNotRetryable):
		s.sendError(w, http.StatusConflict, "Job is not in a retryable state")
	case errors.Is(err, dispatch.ErrRetryLimit):
		s.sendError(w, http.StatusConflict, "Job has reached its retry limit")
	case errors.Is(err, dispatch.ErrDailyCapReached):
		s.sendError(w, http.StatusConflict, "Daily job cap reached for this campaign")
	default:
		s.logger.Error("dispatch operation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, fallback)
	}
}
