package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postflow/internal/metrics"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
)

// Dispatcher turns a campaign's declarative policy into a concrete set of
// time-delayed jobs and owns the campaign-level state transitions. It is
// the only producer of upload messages.
type Dispatcher struct {
	campaigns *repository.CampaignRepository
	jobs      *repository.JobRepository
	allocator *Allocator
	delays    *Distributor
	q         queue.Queue
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	campaigns *repository.CampaignRepository,
	jobs *repository.JobRepository,
	allocator *Allocator,
	delays *Distributor,
	q queue.Queue,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		campaigns: campaigns,
		jobs:      jobs,
		allocator: allocator,
		delays:    delays,
		q:         q,
		logger:    logger.With("component", "dispatcher"),
	}
}

// JobSchedule describes one job created by Start
type JobSchedule struct {
	JobID        string  `json:"job_id"`
	AccountID    string  `json:"account_id"`
	AccountEmail string  `json:"account_email"`
	DelaySeconds float64 `json:"delay_seconds"`
}

// StartResult summarizes a dispatch
type StartResult struct {
	CampaignID  string        `json:"campaign_id"`
	JobsCreated int           `json:"jobs_created"`
	Schedule    []JobSchedule `json:"schedule"`
}

// Start materializes a campaign into jobs and enqueues them with spread
// delays. Job rows are created in one transaction and the campaign only
// becomes running after all of them are durable.
func (d *Dispatcher) Start(ctx context.Context, campaignID string) (*StartResult, error) {
	campaign, err := d.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.Status == models.CampaignRunning {
		return nil, ErrAlreadyRunning
	}

	accounts, err := d.allocator.Select(campaign)
	if err != nil {
		return nil, err
	}

	if campaign.Schedule.MaxPerDay > 0 {
		accounts, err = d.applyDailyCap(campaign, accounts)
		if err != nil {
			return nil, err
		}
	}

	window := time.Duration(campaign.Schedule.IntervalMinutes) * time.Minute
	now := time.Now()
	total := len(accounts)

	jobs := make([]*models.Job, 0, total)
	delays := make([]time.Duration, 0, total)

	for i, account := range accounts {
		delay := d.delays.Offset(i, total, window)
		scheduledAt := now.Add(delay)

		jobs = append(jobs, &models.Job{
			CampaignID:  campaign.ID,
			AccountID:   account.ID,
			Status:      models.JobPending,
			VideoPath:   campaign.VideoPath,
			Caption:     campaign.CaptionTemplate,
			RetryCount:  0,
			MaxRetries:  models.DefaultMaxRetries,
			ScheduledAt: &scheduledAt,
		})
		delays = append(delays, delay)
	}

	// All-or-nothing: no campaign becomes running on a partial write.
	if err := d.jobs.CreateBatch(jobs); err != nil {
		return nil, fmt.Errorf("failed to create jobs: %w", err)
	}

	if _, err := d.campaigns.MarkRunning(campaign.ID); err != nil {
		return nil, err
	}

	result := &StartResult{CampaignID: campaign.ID, JobsCreated: total}

	for i, job := range jobs {
		msg := &queue.Message{Class: queue.ClassUpload, JobID: job.ID}
		if err := d.q.Enqueue(ctx, msg, delays[i]); err != nil {
			// The job row exists and stays pending; a manual retry or a
			// fresh dispatch cycle can pick it up.
			d.logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
			continue
		}

		result.Schedule = append(result.Schedule, JobSchedule{
			JobID:        job.ID,
			AccountID:    accounts[i].ID,
			AccountEmail: accounts[i].Email,
			DelaySeconds: delays[i].Seconds(),
		})

		d.logger.Info("scheduled job",
			"job_id", job.ID,
			"account", accounts[i].Email,
			"delay_seconds", int(delays[i].Seconds()),
		)
	}

	metrics.IncCampaignStarted()
	d.logger.Info("campaign started", "campaign_id", campaign.ID, "jobs_created", total)
	return result, nil
}

// applyDailyCap trims the account list so today's job count stays within
// the schedule's per-day cap.
func (d *Dispatcher) applyDailyCap(campaign *models.Campaign, accounts []models.Account) ([]models.Account, error) {
	midnight := time.Now().Truncate(24 * time.Hour)
	created, err := d.jobs.CountCreatedSince(campaign.ID, midnight)
	if err != nil {
		return nil, err
	}

	remaining := campaign.Schedule.MaxPerDay - created
	if remaining <= 0 {
		return nil, ErrDailyCapReached
	}
	if len(accounts) > remaining {
		accounts = accounts[:remaining]
	}
	return accounts, nil
}

// Pause transitions a running campaign to paused. Claimed upload messages
// for a paused campaign are postponed by the executor, not failed.
func (d *Dispatcher) Pause(ctx context.Context, campaignID string) (*models.Campaign, error) {
	ok, err := d.campaigns.MarkPaused(campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.transitionError(campaignID, ErrNotRunning)
	}

	d.logger.Info("campaign paused", "campaign_id", campaignID)
	return d.campaigns.GetByID(campaignID)
}

// Resume transitions a paused campaign back to running
func (d *Dispatcher) Resume(ctx context.Context, campaignID string) (*models.Campaign, error) {
	ok, err := d.campaigns.MarkResumed(campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.transitionError(campaignID, ErrNotPaused)
	}

	d.logger.Info("campaign resumed", "campaign_id", campaignID)
	return d.campaigns.GetByID(campaignID)
}

// CancelResult summarizes a campaign cancellation
type CancelResult struct {
	Campaign      *models.Campaign `json:"campaign"`
	JobsCancelled int              `json:"jobs_cancelled"`
}

// Cancel cancels a running or paused campaign. Every job still pending
// moves to cancelled; jobs already running finish naturally and keep
// their eventual terminal status.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID string) (*CancelResult, error) {
	ok, err := d.campaigns.MarkCancelled(campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.transitionError(campaignID, ErrNotCancellable)
	}

	cancelled, err := d.jobs.CancelPending(campaignID)
	if err != nil {
		return nil, err
	}

	campaign, err := d.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	metrics.AddJobsCancelled(cancelled)
	d.logger.Info("campaign cancelled", "campaign_id", campaignID, "jobs_cancelled", cancelled)
	return &CancelResult{Campaign: campaign, JobsCancelled: cancelled}, nil
}

// RetryJob resets a failed job to pending and re-enqueues it immediately.
// Exempt from the transient/permanent check but the retry ceiling holds.
func (d *Dispatcher) RetryJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := d.jobs.GetByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.Status != models.JobFailed {
		return nil, ErrNotRetryable
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, ErrRetryLimit
	}

	ok, err := d.jobs.ResetForRetry(jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with another writer; re-read and report precisely.
		return nil, ErrNotRetryable
	}

	msg := &queue.Message{Class: queue.ClassUpload, JobID: jobID}
	if err := d.q.Enqueue(ctx, msg, 0); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	d.logger.Info("job queued for manual retry", "job_id", jobID)
	return d.jobs.GetByID(jobID)
}

// RetryAllFailed retries every failed job below its retry ceiling,
// optionally scoped to one campaign. Jobs at the ceiling are skipped.
func (d *Dispatcher) RetryAllFailed(ctx context.Context, campaignID string) ([]models.Job, error) {
	failed, err := d.jobs.ListFailed(campaignID)
	if err != nil {
		return nil, err
	}

	retried := []models.Job{}
	for _, job := range failed {
		if job.RetryCount >= job.MaxRetries {
			continue
		}

		ok, err := d.jobs.ResetForRetry(job.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		msg := &queue.Message{Class: queue.ClassUpload, JobID: job.ID}
		if err := d.q.Enqueue(ctx, msg, 0); err != nil {
			d.logger.Error("failed to enqueue retry", "job_id", job.ID, "error", err)
			continue
		}

		updated, err := d.jobs.GetByID(job.ID)
		if err != nil {
			return nil, err
		}
		retried = append(retried, *updated)
	}

	d.logger.Info("failed jobs retried", "campaign_id", campaignID, "count", len(retried))
	return retried, nil
}

// Statistics returns job counts, optionally scoped to one campaign
func (d *Dispatcher) Statistics(ctx context.Context, campaignID string) (*models.JobStats, error) {
	return d.jobs.Stats(campaignID)
}

// EnqueueAccountTest schedules a session validity check for an account
func (d *Dispatcher) EnqueueAccountTest(ctx context.Context, accountID string) error {
	return d.q.Enqueue(ctx, &queue.Message{Class: queue.ClassAccountTest, JobID: accountID}, 0)
}

// EnqueueProxyCheck schedules a health check for a proxy
func (d *Dispatcher) EnqueueProxyCheck(ctx context.Context, proxyID string) error {
	return d.q.Enqueue(ctx, &queue.Message{Class: queue.ClassProxyCheck, JobID: proxyID}, 0)
}

// EnqueueBatchProcess schedules creation of count payload variations for
// a campaign's video
func (d *Dispatcher) EnqueueBatchProcess(ctx context.Context, campaignID string, count int) error {
	msg := &queue.Message{Class: queue.ClassBatchProcess, JobID: campaignID, Count: count}
	return d.q.Enqueue(ctx, msg, 0)
}

// transitionError distinguishes a missing campaign from a precondition
// violation so the API can answer 404 vs 409.
func (d *Dispatcher) transitionError(campaignID string, precondition error) error {
	campaign, err := d.campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	return precondition
}
