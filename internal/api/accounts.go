package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"postflow/internal/models"
)

// AccountRequest is the request body for creating or updating an account
type AccountRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	Cookies   string `json:"cookies,omitempty"`
	Status    string `json:"status,omitempty"`
	ProxyID   string `json:"proxy_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

// handleListAccounts handles GET /api/v1/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	filter := models.AccountListFilter{
		Status:    models.AccountStatus(r.URL.Query().Get("status")),
		ProxyID:   r.URL.Query().Get("proxy_id"),
		ProfileID: r.URL.Query().Get("profile_id"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}

	accounts, err := s.accounts.List(filter)
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	s.sendJSON(w, http.StatusOK, accounts)
}

// handleCreateAccount handles POST /api/v1/accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}

	status := models.AccountActive
	if req.Status != "" {
		status = models.AccountStatus(req.Status)
	}

	account := &models.Account{
		Email:     req.Email,
		Password:  req.Password,
		Cookies:   req.Cookies,
		Status:    status,
		ProxyID:   req.ProxyID,
		ProfileID: req.ProfileID,
	}

	if err := s.accounts.Create(account); err != nil {
		s.logger.Error("failed to create account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	s.logger.Info("account created", "account_id", account.ID, "email", account.Email)
	s.sendJSON(w, http.StatusCreated, account)
}

// handleGetAccount handles GET /api/v1/accounts/{id}
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if account == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	s.sendJSON(w, http.StatusOK, account)
}

// handleUpdateAccount handles PUT /api/v1/accounts/{id}. Empty credential
// fields keep their stored values.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if account == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email != "" {
		account.Email = req.Email
	}
	if req.Password != "" {
		account.Password = req.Password
	}
	if req.Cookies != "" {
		account.Cookies = req.Cookies
	}
	if req.Status != "" {
		account.Status = models.AccountStatus(req.Status)
	}
	account.ProxyID = req.ProxyID
	account.ProfileID = req.ProfileID

	if err := s.accounts.Update(account); err != nil {
		s.logger.Error("failed to update account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update account")
		return
	}

	s.sendJSON(w, http.StatusOK, account)
}

// handleDeleteAccount handles DELETE /api/v1/accounts/{id}
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleTestAccount handles POST /api/v1/accounts/{id}/test. The check
// itself runs asynchronously on the queue.
func (s *Server) handleTestAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := s.accounts.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get account", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	if account == nil {
		s.sendError(w, http.StatusNotFound, "Account not found")
		return
	}

	if err := s.dispatcher.EnqueueAccountTest(r.Context(), id); err != nil {
		s.logger.Error("failed to enqueue account test", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to queue account test")
		return
	}

	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
