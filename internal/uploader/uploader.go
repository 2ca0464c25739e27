// Package uploader defines the contracts of the external automation
// collaborators: the browser-driven video uploader, the account session
// tester and the proxy checker. The engine only sees these interfaces;
// the real implementations live outside this module.
package uploader

import (
	"context"

	"postflow/internal/models"
)

// Request carries everything one upload needs
type Request struct {
	VideoPath string
	Caption   string
	Account   *models.Account
	Proxy     *models.Proxy   // optional
	Profile   *models.Profile // optional
}

// Result is the outcome of one upload attempt. Failures surface through
// Error, never through a panic or an untyped throw.
type Result struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"video_url,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Uploader performs one upload against the target platform. It must honor
// ctx cancellation: the executor enforces soft and hard time limits by
// cancelling the context.
type Uploader interface {
	Upload(ctx context.Context, req *Request) (*Result, error)
}

// AccountTester verifies that an account's stored session is still valid
type AccountTester interface {
	Test(ctx context.Context, account *models.Account) (valid bool, err error)
}

// ProxyCheckResult is the outcome of a proxy health check
type ProxyCheckResult struct {
	IsWorking bool   `json:"is_working"`
	LatencyMS int    `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProxyChecker measures proxy connectivity and latency
type ProxyChecker interface {
	Check(ctx context.Context, proxy *models.Proxy) (*ProxyCheckResult, error)
}

// VideoProcessor creates unique variations of a source video so repeated
// uploads do not share a byte-identical payload
type VideoProcessor interface {
	CreateVariation(ctx context.Context, videoPath string, variation int) (string, error)
}
