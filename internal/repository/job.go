package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a single job
func (r *JobRepository) Create(j *models.Job) error {
	prepareJob(j)
	_, err := r.db.Exec(insertJobSQL, jobInsertArgs(j)...)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// CreateBatch creates all jobs in one transaction. Either every row is
// written or none are.
func (r *JobRepository) CreateBatch(jobs []*models.Job) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertJobSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, j := range jobs {
		prepareJob(j)
		if _, err := stmt.Exec(jobInsertArgs(j)...); err != nil {
			return fmt.Errorf("failed to create job for account %s: %w", j.AccountID, err)
		}
	}

	return tx.Commit()
}

const insertJobSQL = `
	INSERT INTO jobs (id, campaign_id, account_id, status, video_path, caption,
		retry_count, max_retries, scheduled_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func prepareJob(j *models.Job) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = models.JobPending
	}
	if j.MaxRetries == 0 {
		j.MaxRetries = models.DefaultMaxRetries
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	j.UpdatedAt = j.CreatedAt
}

func jobInsertArgs(j *models.Job) []any {
	return []any{j.ID, j.CampaignID, j.AccountID, j.Status, j.VideoPath, j.Caption,
		j.RetryCount, j.MaxRetries, j.ScheduledAt, j.CreatedAt, j.UpdatedAt}
}

// GetByID returns a job by ID, or nil if not found
func (r *JobRepository) GetByID(id string) (*models.Job, error) {
	row := r.db.QueryRow(selectJobSQL+" WHERE id = ?", id)
	return scanJob(row)
}

const selectJobSQL = `
	SELECT id, campaign_id, account_id, status, video_path, caption, error_message,
		retry_count, max_retries, scheduled_at, started_at, completed_at, created_at, updated_at
	FROM jobs`

// List returns jobs with optional filtering, newest first
func (r *JobRepository) List(filter models.JobListFilter) ([]models.Job, error) {
	query := selectJobSQL + " WHERE 1=1"
	args := []any{}

	if filter.CampaignID != "" {
		query += " AND campaign_id = ?"
		args = append(args, filter.CampaignID)
	}
	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Claim transitions pending/retrying -> running and stamps started_at.
// Returns false if the job was in any other state, which covers duplicate
// queue delivery: a terminal or already-running job cannot be claimed again.
func (r *JobRepository) Claim(id string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.JobRunning, now, now, id, models.JobPending, models.JobRetrying,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCompleted transitions running -> completed and stamps completed_at
func (r *JobRepository) MarkCompleted(id string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobCompleted, now, now, id, models.JobRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkFailed transitions running -> failed, recording the final error
func (r *JobRepository) MarkFailed(id, errorMessage string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobFailed, now, errorMessage, now, id, models.JobRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkRetrying transitions running -> retrying, incrementing retry_count and
// recording the failure reason. The guard on max_retries means the increment
// can never push retry_count past the ceiling.
func (r *JobRepository) MarkRetrying(id, errorMessage string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, retry_count = retry_count + 1, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ? AND retry_count < max_retries`,
		models.JobRetrying, errorMessage, time.Now(), id, models.JobRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ResetForRetry resets a failed job to pending for a user-triggered retry:
// retry_count is incremented, the error and execution timestamps cleared.
// Returns false if the job is not failed or already at the retry ceiling.
func (r *JobRepository) ResetForRetry(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, retry_count = retry_count + 1,
			error_message = NULL, started_at = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ? AND retry_count < max_retries`,
		models.JobPending, time.Now(), id, models.JobFailed,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Requeue transitions retrying -> pending once the retry message is durably
// enqueued, and stamps the next scheduled time.
func (r *JobRepository) Requeue(id string, scheduledAt time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, scheduled_at = ?, started_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobPending, scheduledAt, time.Now(), id, models.JobRetrying,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Release returns a claimed job to pending without touching retry_count,
// used when execution must be postponed rather than counted as an attempt.
func (r *JobRepository) Release(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, started_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobPending, time.Now(), id, models.JobRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CancelPending moves every pending job of a campaign to cancelled and
// returns how many were affected. Running jobs are left to finish.
func (r *JobRepository) CancelPending(campaignID string) (int, error) {
	res, err := r.db.Exec(`
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE campaign_id = ? AND status IN (?, ?)`,
		models.JobCancelled, time.Now(), campaignID, models.JobPending, models.JobRetrying,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListFailed returns failed jobs, optionally scoped to a campaign
func (r *JobRepository) ListFailed(campaignID string) ([]models.Job, error) {
	filter := models.JobListFilter{Status: models.JobFailed, CampaignID: campaignID}
	return r.List(filter)
}

// Stats returns job counts, optionally scoped to a campaign
func (r *JobRepository) Stats(campaignID string) (*models.JobStats, error) {
	query := "SELECT status, COUNT(*) FROM jobs"
	args := []any{}
	if campaignID != "" {
		query += " WHERE campaign_id = ?"
		args = append(args, campaignID)
	}
	query += " GROUP BY status"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.JobStats{}
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch status {
		case models.JobPending:
			stats.Pending = n
		case models.JobRunning:
			stats.Running = n
		case models.JobCompleted:
			stats.Completed = n
		case models.JobFailed:
			stats.Failed = n
		case models.JobCancelled:
			stats.Cancelled = n
		case models.JobRetrying:
			stats.Retrying = n
		}
	}
	return stats, rows.Err()
}

// CountUnfinished returns how many jobs of a campaign are not yet terminal
func (r *JobRepository) CountUnfinished(campaignID string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM jobs
		WHERE campaign_id = ? AND status IN (?, ?, ?)`,
		campaignID, models.JobPending, models.JobRunning, models.JobRetrying,
	).Scan(&n)
	return n, err
}

// CountCreatedSince returns jobs created after the cutoff, optionally
// scoped to a campaign. Used to enforce per-day dispatch caps.
func (r *JobRepository) CountCreatedSince(campaignID string, cutoff time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM jobs WHERE created_at >= ?"
	args := []any{cutoff}
	if campaignID != "" {
		query += " AND campaign_id = ?"
		args = append(args, campaignID)
	}
	var n int
	err := r.db.QueryRow(query, args...).Scan(&n)
	return n, err
}

// CountFinishedSince returns how many jobs completed and how many failed
// after the cutoff. Feeds the dashboard's activity window.
func (r *JobRepository) CountFinishedSince(cutoff time.Time) (completed, failed int, err error) {
	rows, err := r.db.Query(`
		SELECT status, COUNT(*) FROM jobs
		WHERE status IN (?, ?) AND completed_at >= ?
		GROUP BY status`,
		models.JobCompleted, models.JobFailed, cutoff,
	)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, err
		}
		switch status {
		case models.JobCompleted:
			completed = n
		case models.JobFailed:
			failed = n
		}
	}
	return completed, failed, rows.Err()
}

// DeleteTerminalOlderThan removes completed, failed and cancelled jobs whose
// completion is older than the cutoff. Returns the number deleted.
func (r *JobRepository) DeleteTerminalOlderThan(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(`
		DELETE FROM jobs
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		models.JobCompleted, models.JobFailed, models.JobCancelled, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanJob(row rowScanner) (*models.Job, error) {
	j := &models.Job{}
	var errorMessage sql.NullString
	var scheduledAt, startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.CampaignID, &j.AccountID, &j.Status, &j.VideoPath, &j.Caption,
		&errorMessage, &j.RetryCount, &j.MaxRetries, &scheduledAt, &startedAt, &completedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if errorMessage.Valid {
		j.ErrorMessage = errorMessage.String
	}
	if scheduledAt.Valid {
		j.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}
