package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"postflow/internal/models"
)

// Agent talks to the browser-automation agent over its local HTTP API.
// The agent owns the browsers; this client only ships work to it and
// interprets the verdicts.
type Agent struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// AgentConfig contains automation agent connection settings
type AgentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAgent creates an automation agent client
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Agent{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type agentUploadRequest struct {
	VideoPath string          `json:"video_path"`
	Caption   string          `json:"caption"`
	Email     string          `json:"email"`
	Password  string          `json:"password,omitempty"`
	Cookies   string          `json:"cookies,omitempty"`
	Proxy     *agentProxy     `json:"proxy,omitempty"`
	Profile   *models.Profile `json:"profile,omitempty"`
}

type agentProxy struct {
	Addr     string `json:"addr"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Upload ships one upload to the agent. The agent reports failures in the
// result body; transport errors surface as Go errors and classify as
// transient.
func (a *Agent) Upload(ctx context.Context, req *Request) (*Result, error) {
	body := agentUploadRequest{
		VideoPath: req.VideoPath,
		Caption:   req.Caption,
		Email:     req.Account.Email,
		Password:  req.Account.Password,
		Cookies:   req.Account.Cookies,
		Profile:   req.Profile,
	}
	if req.Proxy != nil {
		body.Proxy = &agentProxy{
			Addr:     req.Proxy.Addr(),
			Username: req.Proxy.Username,
			Password: req.Proxy.Password,
		}
	}

	var result Result
	if err := a.post(ctx, "/upload", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type agentTestRequest struct {
	Email   string `json:"email"`
	Cookies string `json:"cookies,omitempty"`
}

type agentTestResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Test asks the agent whether the account's stored session still works
func (a *Agent) Test(ctx context.Context, account *models.Account) (bool, error) {
	var resp agentTestResponse
	err := a.post(ctx, "/test-account", agentTestRequest{
		Email:   account.Email,
		Cookies: account.Cookies,
	}, &resp)
	if err != nil {
		return false, err
	}
	if resp.Error != "" {
		return false, fmt.Errorf("agent: %s", resp.Error)
	}
	return resp.Valid, nil
}

type agentCheckRequest struct {
	Addr     string `json:"addr"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Check asks the agent to measure proxy connectivity
func (a *Agent) Check(ctx context.Context, proxy *models.Proxy) (*ProxyCheckResult, error) {
	var result ProxyCheckResult
	err := a.post(ctx, "/check-proxy", agentCheckRequest{
		Addr:     proxy.Addr(),
		Username: proxy.Username,
		Password: proxy.Password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type agentVariationRequest struct {
	VideoPath string `json:"video_path"`
	Variation int    `json:"variation"`
}

type agentVariationResponse struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// CreateVariation asks the agent to produce one unique variation of a
// source video and returns its path.
func (a *Agent) CreateVariation(ctx context.Context, videoPath string, variation int) (string, error) {
	var resp agentVariationResponse
	err := a.post(ctx, "/process-video", agentVariationRequest{
		VideoPath: videoPath,
		Variation: variation,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("agent: %s", resp.Error)
	}
	return resp.Path, nil
}

func (a *Agent) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode agent response: %w", err)
	}
	return nil
}
