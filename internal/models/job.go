package models

import "time"

// JobStatus represents the state of a single upload job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobRetrying  JobStatus = "retrying"
)

// Terminal reports whether no further status change is allowed
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// DefaultMaxRetries is the retry ceiling applied to newly created jobs
const DefaultMaxRetries = 3

// Job is one scheduled execution of a campaign's payload through one account.
// CampaignID and AccountID are immutable after creation.
type Job struct {
	ID           string     `json:"id"`
	CampaignID   string     `json:"campaign_id"`
	AccountID    string     `json:"account_id"`
	Status       JobStatus  `json:"status"`
	VideoPath    string     `json:"video_path"`
	Caption      string     `json:"caption"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobStats holds aggregated job counts
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Retrying  int `json:"retrying"`
}

// JobListFilter for filtering jobs
type JobListFilter struct {
	CampaignID string
	AccountID  string
	Status     JobStatus
	Limit      int
	Offset     int
}
