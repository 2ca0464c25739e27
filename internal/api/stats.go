package api

import (
	"net/http"
	"time"

	"postflow/internal/models"
)

// DashboardResponse is the response for GET /api/v1/stats/dashboard
type DashboardResponse struct {
	Campaigns map[models.CampaignStatus]int `json:"campaigns"`
	Accounts  map[models.AccountStatus]int  `json:"accounts"`
	Proxies   map[models.ProxyStatus]int    `json:"proxies"`
	Jobs      *models.JobStats              `json:"jobs"`

	Last24h     ActivityWindow `json:"last_24h"`
	SuccessRate float64        `json:"success_rate"`
}

// ActivityWindow summarizes job outcomes inside a time window
type ActivityWindow struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// handleDashboard handles GET /api/v1/stats/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	campaignCounts, err := s.campaigns.CountByStatus()
	if err != nil {
		s.logger.Error("failed to count campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	accountCounts, err := s.accounts.CountByStatus()
	if err != nil {
		s.logger.Error("failed to count accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	proxyCounts, err := s.proxies.CountByStatus()
	if err != nil {
		s.logger.Error("failed to count proxies", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	jobStats, err := s.jobs.Stats("")
	if err != nil {
		s.logger.Error("failed to get job stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	completed24h, failed24h, err := s.jobs.CountFinishedSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		s.logger.Error("failed to get activity window", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	resp := DashboardResponse{
		Campaigns: campaignCounts,
		Accounts:  accountCounts,
		Proxies:   proxyCounts,
		Jobs:      jobStats,
		Last24h:   ActivityWindow{Completed: completed24h, Failed: failed24h},
	}

	if finished := jobStats.Completed + jobStats.Failed; finished > 0 {
		resp.SuccessRate = float64(jobStats.Completed) / float64(finished)
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// ActivityEntry is one row of the recent activity feed
type ActivityEntry struct {
	Job          models.Job `json:"job"`
	AccountEmail string     `json:"account_email,omitempty"`
}

// handleActivity handles GET /api/v1/stats/activity, returning the most
// recent jobs with their account labels.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	jobs, err := s.jobs.List(models.JobListFilter{Limit: limit})
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get activity")
		return
	}

	// Jobs cluster on few accounts; resolve each email once.
	emails := map[string]string{}
	entries := make([]ActivityEntry, 0, len(jobs))
	for _, job := range jobs {
		email, seen := emails[job.AccountID]
		if !seen {
			account, err := s.accounts.GetByID(job.AccountID)
			if err == nil && account != nil {
				email = account.Email
			}
			emails[job.AccountID] = email
		}
		entries = append(entries, ActivityEntry{Job: job, AccountEmail: email})
	}

	s.sendJSON(w, http.StatusOK, entries)
}
