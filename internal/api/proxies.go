package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"postflow/internal/models"
)

// ProxyRequest is the request body for creating or updating a proxy
type ProxyRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Type     string `json:"type,omitempty"`
	Status   string `json:"status,omitempty"`
}

// handleListProxies handles GET /api/v1/proxies
func (s *Server) handleListProxies(w http.ResponseWriter, r *http.Request) {
	filter := models.ProxyListFilter{
		Status: models.ProxyStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	proxies, err := s.proxies.List(filter)
	if err != nil {
		s.logger.Error("failed to list proxies", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list proxies")
		return
	}

	s.sendJSON(w, http.StatusOK, proxies)
}

// handleCreateProxy handles POST /api/v1/proxies
func (s *Server) handleCreateProxy(w http.ResponseWriter, r *http.Request) {
	var req ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Host == "" {
		s.sendError(w, http.StatusBadRequest, "host is required")
		return
	}
	if req.Port <= 0 || req.Port > 65535 {
		s.sendError(w, http.StatusBadRequest, "port must be between 1 and 65535")
		return
	}

	proxyType := models.ProxyDatacenter
	if req.Type != "" {
		proxyType = models.ProxyType(req.Type)
	}
	status := models.ProxyActive
	if req.Status != "" {
		status = models.ProxyStatus(req.Status)
	}

	proxy := &models.Proxy{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Type:     proxyType,
		Status:   status,
	}

	if err := s.proxies.Create(proxy); err != nil {
		s.logger.Error("failed to create proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create proxy")
		return
	}

	s.logger.Info("proxy created", "proxy_id", proxy.ID, "addr", proxy.Addr())
	s.sendJSON(w, http.StatusCreated, proxy)
}

// handleGetProxy handles GET /api/v1/proxies/{id}
func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	proxy, err := s.proxies.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get proxy")
		return
	}
	if proxy == nil {
		s.sendError(w, http.StatusNotFound, "Proxy not found")
		return
	}

	s.sendJSON(w, http.StatusOK, proxy)
}

// handleUpdateProxy handles PUT /api/v1/proxies/{id}
func (s *Server) handleUpdateProxy(w http.ResponseWriter, r *http.Request) {
	proxy, err := s.proxies.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get proxy")
		return
	}
	if proxy == nil {
		s.sendError(w, http.StatusNotFound, "Proxy not found")
		return
	}

	var req ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Host != "" {
		proxy.Host = req.Host
	}
	if req.Port > 0 && req.Port <= 65535 {
		proxy.Port = req.Port
	}
	if req.Username != "" {
		proxy.Username = req.Username
	}
	if req.Password != "" {
		proxy.Password = req.Password
	}
	if req.Type != "" {
		proxy.Type = models.ProxyType(req.Type)
	}
	if req.Status != "" {
		proxy.Status = models.ProxyStatus(req.Status)
	}

	if err := s.proxies.Update(proxy); err != nil {
		s.logger.Error("failed to update proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update proxy")
		return
	}

	s.sendJSON(w, http.StatusOK, proxy)
}

// handleDeleteProxy handles DELETE /api/v1/proxies/{id}
func (s *Server) handleDeleteProxy(w http.ResponseWriter, r *http.Request) {
	if err := s.proxies.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete proxy")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleCheckProxy handles POST /api/v1/proxies/{id}/check
func (s *Server) handleCheckProxy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	proxy, err := s.proxies.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get proxy", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get proxy")
		return
	}
	if proxy == nil {
		s.sendError(w, http.StatusNotFound, "Proxy not found")
		return
	}

	if err := s.dispatcher.EnqueueProxyCheck(r.Context(), id); err != nil {
		s.logger.Error("failed to enqueue proxy check", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to queue proxy check")
		return
	}

	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleCheckAllProxies handles POST /api/v1/proxies/check-all, fanning
// out one check task per known proxy.
func (s *Server) handleCheckAllProxies(w http.ResponseWriter, r *http.Request) {
	proxies, err := s.proxies.List(models.ProxyListFilter{})
	if err != nil {
		s.logger.Error("failed to list proxies", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list proxies")
		return
	}

	queued := 0
	for _, proxy := range proxies {
		if err := s.dispatcher.EnqueueProxyCheck(r.Context(), proxy.ID); err != nil {
			s.logger.Error("failed to enqueue proxy check", "proxy_id", proxy.ID, "error", err)
			continue
		}
		queued++
	}

	s.sendJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"queued": queued,
		"total":  len(proxies),
	})
}
