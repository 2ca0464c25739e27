package executor

import (
	"context"
	"fmt"
	"time"

	"postflow/internal/metrics"
	"postflow/internal/models"
	"postflow/internal/queue"
)

const maintenanceTimeout = 2 * time.Minute

// handleAccountTest verifies a stored session and updates account status
// from the verdict. The message's JobID carries the account id.
func (e *Executor) handleAccountTest(ctx context.Context, msg *queue.Message) error {
	logger := e.logger.With("message_id", msg.ID, "account_id", msg.JobID)

	account, err := e.accounts.GetByID(msg.JobID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		logger.Debug("account gone, dropping test")
		return e.q.Ack(ctx, msg.ID)
	}

	testCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()

	valid, err := e.tester.Test(testCtx, account)
	if err != nil {
		logger.Warn("account test errored", "error", err)
		return e.q.Ack(ctx, msg.ID)
	}

	if valid {
		if err := e.accounts.Touch(account.ID); err != nil {
			logger.Error("failed to touch account", "error", err)
		}
		logger.Info("account session valid", "account", account.Email)
		return e.q.Ack(ctx, msg.ID)
	}

	if err := e.accounts.UpdateStatus(account.ID, models.AccountInactive); err != nil {
		logger.Error("failed to update account status", "error", err)
	} else {
		metrics.IncAccountDowngraded(string(models.AccountInactive))
	}
	logger.Warn("account session invalid, deactivated", "account", account.Email)
	return e.q.Ack(ctx, msg.ID)
}

// handleProxyCheck measures proxy health and records status, latency and
// check time. The message's JobID carries the proxy id.
func (e *Executor) handleProxyCheck(ctx context.Context, msg *queue.Message) error {
	logger := e.logger.With("message_id", msg.ID, "proxy_id", msg.JobID)

	proxy, err := e.proxies.GetByID(msg.JobID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load proxy: %w", err)
	}
	if proxy == nil {
		logger.Debug("proxy gone, dropping check")
		return e.q.Ack(ctx, msg.ID)
	}

	checkCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()

	result, err := e.checker.Check(checkCtx, proxy)
	if err != nil {
		if recErr := e.proxies.RecordCheck(proxy.ID, models.ProxyError, 0); recErr != nil {
			logger.Error("failed to record proxy check", "error", recErr)
		}
		logger.Warn("proxy check errored", "error", err)
		return e.q.Ack(ctx, msg.ID)
	}

	status := models.ProxyActive
	latency := result.LatencyMS
	if !result.IsWorking {
		status = models.ProxyError
		latency = 0
	}

	if err := e.proxies.RecordCheck(proxy.ID, status, latency); err != nil {
		logger.Error("failed to record proxy check", "error", err)
	}

	logger.Info("proxy checked",
		"addr", proxy.Addr(),
		"working", result.IsWorking,
		"latency_ms", latency,
	)
	return e.q.Ack(ctx, msg.ID)
}

// handleBatchProcess creates payload variations for a campaign's video.
// The message's JobID carries the campaign id, Count how many variations.
func (e *Executor) handleBatchProcess(ctx context.Context, msg *queue.Message) error {
	logger := e.logger.With("message_id", msg.ID, "campaign_id", msg.JobID)

	campaign, err := e.campaigns.GetByID(msg.JobID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		logger.Debug("campaign gone, dropping batch process")
		return e.q.Ack(ctx, msg.ID)
	}

	count := msg.Count
	if count <= 0 {
		count = 1
	}

	created := 0
	for i := 0; i < count; i++ {
		if _, err := e.processor.CreateVariation(ctx, campaign.VideoPath, i); err != nil {
			logger.Warn("variation failed", "variation", i, "error", err)
			continue
		}
		created++
	}

	logger.Info("batch processing finished", "requested", count, "created", created)
	return e.q.Ack(ctx, msg.ID)
}
