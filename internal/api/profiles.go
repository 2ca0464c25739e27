package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"postflow/internal/models"
)

// ProfileRequest is the request body for creating or updating a profile
type ProfileRequest struct {
	Name      string `json:"name"`
	UserAgent string `json:"user_agent"`
	Viewport  string `json:"viewport,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// handleListProfiles handles GET /api/v1/profiles
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List()
	if err != nil {
		s.logger.Error("failed to list profiles", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	s.sendJSON(w, http.StatusOK, profiles)
}

// handleCreateProfile handles POST /api/v1/profiles
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.UserAgent == "" {
		s.sendError(w, http.StatusBadRequest, "user_agent is required")
		return
	}

	profile := &models.Profile{
		Name:      req.Name,
		UserAgent: req.UserAgent,
		Viewport:  req.Viewport,
		Timezone:  req.Timezone,
		Locale:    req.Locale,
	}

	if err := s.profiles.Create(profile); err != nil {
		s.logger.Error("failed to create profile", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	s.sendJSON(w, http.StatusCreated, profile)
}

// handleGetProfile handles GET /api/v1/profiles/{id}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get profile", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}
	if profile == nil {
		s.sendError(w, http.StatusNotFound, "Profile not found")
		return
	}

	s.sendJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile handles PUT /api/v1/profiles/{id}
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get profile", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}
	if profile == nil {
		s.sendError(w, http.StatusNotFound, "Profile not found")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		profile.Name = req.Name
	}
	if req.UserAgent != "" {
		profile.UserAgent = req.UserAgent
	}
	if req.Viewport != "" {
		profile.Viewport = req.Viewport
	}
	if req.Timezone != "" {
		profile.Timezone = req.Timezone
	}
	if req.Locale != "" {
		profile.Locale = req.Locale
	}

	if err := s.profiles.Update(profile); err != nil {
		s.logger.Error("failed to update profile", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	s.sendJSON(w, http.StatusOK, profile)
}

// handleDeleteProfile handles DELETE /api/v1/profiles/{id}
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete profile", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
