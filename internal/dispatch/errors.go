package dispatch

import "errors"

var (
	// ErrCampaignNotFound is returned when the referenced campaign does not exist
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrJobNotFound is returned when the referenced job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrNoEligibleAccounts aborts dispatch before any job is created
	ErrNoEligibleAccounts = errors.New("no eligible accounts match the selection policy")

	// ErrAlreadyRunning rejects starting a campaign that is already running
	ErrAlreadyRunning = errors.New("campaign is already running")

	// ErrNotRunning rejects pausing a campaign that is not running
	ErrNotRunning = errors.New("campaign is not running")

	// ErrNotPaused rejects resuming a campaign that is not paused
	ErrNotPaused = errors.New("campaign is not paused")

	// ErrNotCancellable rejects cancelling a campaign that is neither
	// running nor paused
	ErrNotCancellable = errors.New("campaign is not running or paused")

	// ErrNotRetryable rejects a manual retry of a job that is not failed
	ErrNotRetryable = errors.New("only failed jobs can be retried")

	// ErrRetryLimit rejects a manual retry once the retry ceiling is reached
	ErrRetryLimit = errors.New("job has reached its maximum retry limit")

	// ErrDailyCapReached rejects dispatch when the schedule's per-day cap
	// leaves no room for new jobs
	ErrDailyCapReached = errors.New("daily job cap reached for this campaign")
)
