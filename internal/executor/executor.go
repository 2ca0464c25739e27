package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postflow/internal/dispatch"
	"postflow/internal/metrics"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/uploader"
)

const (
	// DefaultSoftTimeLimit is when an upload gets its cancellation signal.
	DefaultSoftTimeLimit = 25 * time.Minute

	// DefaultHardTimeLimit forcibly abandons an upload that ignored the
	// soft cancel. Must exceed the soft limit.
	DefaultHardTimeLimit = 30 * time.Minute

	// busyNackDelay postpones a message whose account is mid-upload on
	// another worker.
	busyNackDelay = 30 * time.Second

	// pausedNackDelay postpones upload messages of a paused campaign.
	pausedNackDelay = time.Minute

	// errorNackDelay postpones a message after an infrastructure error
	// (storage unavailable, not a job failure).
	errorNackDelay = 30 * time.Second
)

// Executor runs one claimed queue message end to end: it drives the Job
// state machine for uploads and handles the maintenance task classes.
type Executor struct {
	jobs      *repository.JobRepository
	campaigns *repository.CampaignRepository
	accounts  *repository.AccountRepository
	proxies   *repository.ProxyRepository
	profiles  *repository.ProfileRepository
	q         queue.Queue

	uploader  uploader.Uploader
	tester    uploader.AccountTester
	checker   uploader.ProxyChecker
	processor uploader.VideoProcessor

	retry *dispatch.RetryPolicy
	latch *accountLatch

	softLimit time.Duration
	hardLimit time.Duration

	logger *slog.Logger
}

// Config carries the executor's tunables
type Config struct {
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
}

// Collaborators bundles the external automation implementations
type Collaborators struct {
	Uploader  uploader.Uploader
	Tester    uploader.AccountTester
	Checker   uploader.ProxyChecker
	Processor uploader.VideoProcessor
}

// New creates an executor
func New(
	jobs *repository.JobRepository,
	campaigns *repository.CampaignRepository,
	accounts *repository.AccountRepository,
	proxies *repository.ProxyRepository,
	profiles *repository.ProfileRepository,
	q queue.Queue,
	collab Collaborators,
	retry *dispatch.RetryPolicy,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	if cfg.SoftTimeLimit <= 0 {
		cfg.SoftTimeLimit = DefaultSoftTimeLimit
	}
	if cfg.HardTimeLimit <= cfg.SoftTimeLimit {
		cfg.HardTimeLimit = cfg.SoftTimeLimit + 5*time.Minute
	}

	return &Executor{
		jobs:      jobs,
		campaigns: campaigns,
		accounts:  accounts,
		proxies:   proxies,
		profiles:  profiles,
		q:         q,
		uploader:  collab.Uploader,
		tester:    collab.Tester,
		checker:   collab.Checker,
		processor: collab.Processor,
		retry:     retry,
		latch:     newAccountLatch(),
		softLimit: cfg.SoftTimeLimit,
		hardLimit: cfg.HardTimeLimit,
		logger:    logger.With("component", "executor"),
	}
}

// Handle dispatches one claimed message to its class handler. The
// handler owns the ack/nack decision; Handle never drops a message.
func (e *Executor) Handle(ctx context.Context, msg *queue.Message) {
	start := time.Now()

	var err error
	switch msg.Class {
	case queue.ClassUpload:
		err = e.handleUpload(ctx, msg)
	case queue.ClassAccountTest:
		err = e.handleAccountTest(ctx, msg)
	case queue.ClassProxyCheck:
		err = e.handleProxyCheck(ctx, msg)
	case queue.ClassBatchProcess:
		err = e.handleBatchProcess(ctx, msg)
	default:
		e.logger.Error("unknown task class, dropping", "message_id", msg.ID, "class", msg.Class)
		err = e.q.Ack(ctx, msg.ID)
	}

	if err != nil {
		e.logger.Error("task handler error",
			"message_id", msg.ID,
			"class", msg.Class,
			"error", err,
		)
	}

	metrics.ObserveTaskDuration(string(msg.Class), time.Since(start).Seconds())
}

// handleUpload runs the upload job state machine for one message
func (e *Executor) handleUpload(ctx context.Context, msg *queue.Message) error {
	logger := e.logger.With("message_id", msg.ID, "job_id", msg.JobID)

	job, err := e.jobs.GetByID(msg.JobID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load job: %w", err)
	}

	// Duplicate delivery of a finished job is a no-op.
	if job == nil || job.Status.Terminal() {
		logger.Debug("job missing or terminal, dropping message")
		return e.q.Ack(ctx, msg.ID)
	}

	campaign, err := e.campaigns.GetByID(job.CampaignID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		// Campaign rows cascade-delete their jobs; the job read above
		// won the race. Nothing left to run.
		logger.Warn("campaign gone, dropping message", "campaign_id", job.CampaignID)
		return e.q.Ack(ctx, msg.ID)
	}
	if campaign.Status == models.CampaignPaused {
		logger.Debug("campaign paused, postponing", "campaign_id", campaign.ID)
		metrics.IncTaskDeferred("campaign_paused")
		return e.q.Nack(ctx, msg.ID, pausedNackDelay)
	}

	// One in-flight job per account; a busy account's message comes back
	// later via redelivery.
	if !e.latch.tryAcquire(job.AccountID) {
		logger.Debug("account busy, postponing", "account_id", job.AccountID)
		metrics.IncTaskDeferred("account_busy")
		return e.q.Nack(ctx, msg.ID, busyNackDelay)
	}
	defer e.latch.release(job.AccountID)

	claimed, err := e.jobs.Claim(job.ID)
	if err != nil {
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		// Another delivery already moved the job on.
		logger.Debug("claim lost, dropping message")
		return e.q.Ack(ctx, msg.ID)
	}

	account, err := e.accounts.GetByID(job.AccountID)
	if err != nil {
		e.jobs.Release(job.ID)
		e.q.Nack(ctx, msg.ID, errorNackDelay)
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		e.failJob(ctx, job, campaign, "account no longer exists", uploader.FailureAuth)
		return e.q.Ack(ctx, msg.ID)
	}

	req := &uploader.Request{
		VideoPath: job.VideoPath,
		Caption:   job.Caption,
		Account:   account,
	}

	if account.ProxyID != "" {
		proxy, err := e.proxies.GetByID(account.ProxyID)
		if err != nil {
			e.jobs.Release(job.ID)
			e.q.Nack(ctx, msg.ID, errorNackDelay)
			return fmt.Errorf("failed to load proxy: %w", err)
		}
		req.Proxy = proxy
	}
	if account.ProfileID != "" {
		profile, err := e.profiles.GetByID(account.ProfileID)
		if err != nil {
			e.jobs.Release(job.ID)
			e.q.Nack(ctx, msg.ID, errorNackDelay)
			return fmt.Errorf("failed to load profile: %w", err)
		}
		req.Profile = profile
	}

	logger.Info("running upload",
		"account", account.Email,
		"attempt", job.RetryCount+1,
		"campaign_id", campaign.ID,
	)

	result, timedOut := e.runUpload(ctx, req)

	if timedOut {
		// The collaborator ignored the soft cancel and ran into the
		// hard ceiling. Not retryable, but the message is still acked.
		errMsg := fmt.Sprintf("execution exceeded hard time limit of %s", e.hardLimit)
		e.failJob(ctx, job, campaign, errMsg, uploader.FailureTransient)
		metrics.IncJobFailed(campaign.ID, "timeout")
		return e.q.Ack(ctx, msg.ID)
	}

	if result.Success {
		e.completeJob(ctx, job, campaign, account, result)
		return e.q.Ack(ctx, msg.ID)
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = "upload failed without error detail"
	}
	kind := uploader.Classify(errMsg)

	if e.retry.ShouldRetry(job, kind.Transient()) {
		requeued, err := e.retryJob(ctx, job, campaign, errMsg)
		if err != nil {
			// Infrastructure error mid-retry; redelivery will drive the
			// job forward, Claim accepts the retrying state.
			e.q.Nack(ctx, msg.ID, errorNackDelay)
			return err
		}
		if requeued {
			return e.q.Ack(ctx, msg.ID)
		}
		// Lost the retrying race to another delivery; treat as permanent.
	}

	e.failJob(ctx, job, campaign, errMsg, kind)
	e.downgradeAccount(account, kind)
	metrics.IncJobFailed(campaign.ID, kind.String())
	return e.q.Ack(ctx, msg.ID)
}

// runUpload invokes the collaborator under the soft limit context and the
// hard limit watchdog. The second return is true when the hard ceiling hit.
func (e *Executor) runUpload(ctx context.Context, req *uploader.Request) (*uploader.Result, bool) {
	softCtx, cancel := context.WithTimeout(ctx, e.softLimit)
	defer cancel()

	type outcome struct {
		result *uploader.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := e.uploader.Upload(softCtx, req)
		done <- outcome{result, err}
	}()

	hard := time.NewTimer(e.hardLimit)
	defer hard.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return &uploader.Result{Success: false, Error: out.err.Error()}, false
		}
		if out.result == nil {
			return &uploader.Result{Success: false, Error: "collaborator returned no result"}, false
		}
		return out.result, false
	case <-hard.C:
		cancel()
		return nil, true
	}
}

// completeJob records a successful upload and reconciles the campaign
func (e *Executor) completeJob(ctx context.Context, job *models.Job, campaign *models.Campaign, account *models.Account, result *uploader.Result) {
	ok, err := e.jobs.MarkCompleted(job.ID)
	if err != nil {
		e.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		return
	}
	if !ok {
		return
	}

	if err := e.accounts.Touch(account.ID); err != nil {
		e.logger.Error("failed to touch account", "account_id", account.ID, "error", err)
	}

	metrics.IncJobCompleted(campaign.ID)
	e.logger.Info("upload completed",
		"job_id", job.ID,
		"account", account.Email,
		"video_url", result.VideoURL,
	)

	e.reconcileCampaign(campaign.ID)
}

// retryJob moves a running job through retrying and back onto the queue
// with backoff. Returns false when the retrying transition was refused.
func (e *Executor) retryJob(ctx context.Context, job *models.Job, campaign *models.Campaign, errMsg string) (bool, error) {
	ok, err := e.jobs.MarkRetrying(job.ID, errMsg)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	attempt := job.RetryCount + 1
	backoff := e.retry.Backoff(attempt)
	scheduledAt := time.Now().Add(backoff)

	msg := &queue.Message{Class: queue.ClassUpload, JobID: job.ID}
	if err := e.q.Enqueue(ctx, msg, backoff); err != nil {
		return false, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	if _, err := e.jobs.Requeue(job.ID, scheduledAt); err != nil {
		return false, err
	}

	metrics.IncJobRetried(campaign.ID)
	e.logger.Warn("upload failed, retrying",
		"job_id", job.ID,
		"attempt", attempt,
		"backoff", backoff,
		"error", errMsg,
	)
	return true, nil
}

// failJob records a permanent failure and reconciles the campaign
func (e *Executor) failJob(ctx context.Context, job *models.Job, campaign *models.Campaign, errMsg string, kind uploader.FailureKind) {
	ok, err := e.jobs.MarkFailed(job.ID, errMsg)
	if err != nil {
		e.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	if !ok {
		return
	}

	e.logger.Error("upload failed permanently",
		"job_id", job.ID,
		"failure_kind", kind.String(),
		"retry_count", job.RetryCount,
		"error", errMsg,
	)

	e.reconcileCampaign(campaign.ID)
}

// downgradeAccount applies the account-health side effect of a permanent
// failure. Transient failures never touch account status.
func (e *Executor) downgradeAccount(account *models.Account, kind uploader.FailureKind) {
	switch kind {
	case uploader.FailureBanned:
		if err := e.accounts.UpdateStatus(account.ID, models.AccountBanned); err != nil {
			e.logger.Error("failed to update account status", "account_id", account.ID, "error", err)
			return
		}
		metrics.IncAccountDowngraded(string(models.AccountBanned))

	case uploader.FailureCaptcha:
		if err := e.accounts.UpdateStatus(account.ID, models.AccountNeedsCaptcha); err != nil {
			e.logger.Error("failed to update account status", "account_id", account.ID, "error", err)
			return
		}
		metrics.IncAccountDowngraded(string(models.AccountNeedsCaptcha))

	case uploader.FailureAuth:
		failures, err := e.accounts.RecordAuthFailure(account.ID)
		if err != nil {
			e.logger.Error("failed to record auth failure", "account_id", account.ID, "error", err)
			return
		}
		if failures >= models.AuthFailureLimit {
			metrics.IncAccountDowngraded(string(models.AccountInactive))
			e.logger.Warn("account deactivated after consecutive auth failures",
				"account_id", account.ID,
				"failures", failures,
			)
		}
	}
}

// reconcileCampaign completes a running campaign once none of its jobs
// can still make progress
func (e *Executor) reconcileCampaign(campaignID string) {
	unfinished, err := e.jobs.CountUnfinished(campaignID)
	if err != nil {
		e.logger.Error("failed to count unfinished jobs", "campaign_id", campaignID, "error", err)
		return
	}
	if unfinished > 0 {
		return
	}

	ok, err := e.campaigns.MarkCompleted(campaignID)
	if err != nil {
		e.logger.Error("failed to complete campaign", "campaign_id", campaignID, "error", err)
		return
	}
	if ok {
		metrics.IncCampaignCompleted()
		e.logger.Info("campaign completed", "campaign_id", campaignID)
	}
}
