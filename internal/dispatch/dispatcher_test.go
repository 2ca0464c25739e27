package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"postflow/internal/db"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/secrets"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000000"

// fakeQueue records enqueued messages instead of persisting them
type fakeQueue struct {
	mu       sync.Mutex
	messages []*queue.Message
	delays   []time.Duration
	failWith error
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg *queue.Message, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, msg)
	f.delays = append(f.delays, delay)
	return nil
}

func (f *fakeQueue) Dequeue(ctx context.Context, classes ...queue.Class) (*queue.Message, error) {
	return nil, nil
}

func (f *fakeQueue) Ack(ctx context.Context, id string) error { return nil }

func (f *fakeQueue) Nack(ctx context.Context, id string, delay time.Duration) error { return nil }

func (f *fakeQueue) Reap(ctx context.Context, now time.Time) (int, error) { return 0, nil }

func (f *fakeQueue) Stats(ctx context.Context) (*queue.Stats, error) { return &queue.Stats{}, nil }

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	campaigns  *repository.CampaignRepository
	jobs       *repository.JobRepository
	accounts   *repository.AccountRepository
	q          *fakeQueue
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	box, err := secrets.NewBox(testKey)
	if err != nil {
		t.Fatalf("secrets.NewBox() error = %v", err)
	}

	campaigns := repository.NewCampaignRepository(database.DB)
	jobs := repository.NewJobRepository(database.DB)
	accounts := repository.NewAccountRepository(database.DB, box)

	q := &fakeQueue{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &dispatcherFixture{
		dispatcher: NewDispatcher(campaigns, jobs, NewAllocator(accounts), NewDistributor(), q, logger),
		campaigns:  campaigns,
		jobs:       jobs,
		accounts:   accounts,
		q:          q,
	}
}

func (f *dispatcherFixture) seedAccounts(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		acc := &models.Account{
			Email:    fmt.Sprintf("user%d@example.com", i),
			Password: "secret",
			Status:   models.AccountActive,
		}
		if err := f.accounts.Create(acc); err != nil {
			t.Fatalf("accounts.Create() error = %v", err)
		}
	}
}

func (f *dispatcherFixture) seedCampaign(t *testing.T, status models.CampaignStatus) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		Name:            "launch",
		Status:          status,
		VideoPath:       "/videos/launch.mp4",
		CaptionTemplate: "new drop",
		Selection:       models.SelectionPolicy{Strategy: models.StrategyAll},
		Schedule:        models.ScheduleWindow{IntervalMinutes: 60},
	}
	c.Status = ""
	if err := f.campaigns.Create(c); err != nil {
		t.Fatalf("campaigns.Create() error = %v", err)
	}
	switch status {
	case models.CampaignRunning:
		if _, err := f.campaigns.MarkRunning(c.ID); err != nil {
			t.Fatalf("MarkRunning() error = %v", err)
		}
	case models.CampaignPaused:
		if _, err := f.campaigns.MarkRunning(c.ID); err != nil {
			t.Fatalf("MarkRunning() error = %v", err)
		}
		if _, err := f.campaigns.MarkPaused(c.ID); err != nil {
			t.Fatalf("MarkPaused() error = %v", err)
		}
	}
	c.Status = status
	return c
}

func TestStartCreatesJobsAndEnqueues(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 3)
	campaign := f.seedCampaign(t, models.CampaignDraft)

	result, err := f.dispatcher.Start(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if result.JobsCreated != 3 {
		t.Errorf("JobsCreated = %d, want 3", result.JobsCreated)
	}
	if len(result.Schedule) != 3 {
		t.Errorf("len(Schedule) = %d, want 3", len(result.Schedule))
	}
	if f.q.count() != 3 {
		t.Errorf("enqueued %d messages, want 3", f.q.count())
	}
	for _, msg := range f.q.messages {
		if msg.Class != queue.ClassUpload {
			t.Errorf("message class = %s, want upload", msg.Class)
		}
	}

	updated, err := f.campaigns.GetByID(campaign.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if updated.Status != models.CampaignRunning {
		t.Errorf("campaign status = %s, want running", updated.Status)
	}

	stats, err := f.jobs.Stats(campaign.ID)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Pending != 3 {
		t.Errorf("pending jobs = %d, want 3", stats.Pending)
	}
}

func TestStartCampaignNotFound(t *testing.T) {
	f := newDispatcherFixture(t)

	_, err := f.dispatcher.Start(context.Background(), "missing")
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Start() error = %v, want ErrCampaignNotFound", err)
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 1)
	campaign := f.seedCampaign(t, models.CampaignRunning)

	_, err := f.dispatcher.Start(context.Background(), campaign.ID)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartNoEligibleAccounts(t *testing.T) {
	f := newDispatcherFixture(t)
	campaign := f.seedCampaign(t, models.CampaignDraft)

	_, err := f.dispatcher.Start(context.Background(), campaign.ID)
	if !errors.Is(err, ErrNoEligibleAccounts) {
		t.Errorf("Start() error = %v, want ErrNoEligibleAccounts", err)
	}

	// Nothing partial: no jobs, campaign untouched
	if f.q.count() != 0 {
		t.Errorf("enqueued %d messages after failed start", f.q.count())
	}
	updated, _ := f.campaigns.GetByID(campaign.ID)
	if updated.Status != models.CampaignDraft {
		t.Errorf("campaign status = %s after failed start, want draft", updated.Status)
	}
}

func TestStartDailyCap(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 5)

	campaign := f.seedCampaign(t, models.CampaignDraft)
	campaign.Schedule.MaxPerDay = 2
	if err := f.campaigns.Update(campaign); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	result, err := f.dispatcher.Start(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if result.JobsCreated != 2 {
		t.Errorf("JobsCreated = %d, want capped at 2", result.JobsCreated)
	}

	// Cap exhausted: a second start the same day is rejected
	_, err = f.dispatcher.Start(context.Background(), campaign.ID)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start() error = %v, want ErrAlreadyRunning", err)
	}

	if _, err := f.campaigns.MarkPaused(campaign.ID); err != nil {
		t.Fatalf("MarkPaused() error = %v", err)
	}
	_, err = f.dispatcher.Start(context.Background(), campaign.ID)
	if !errors.Is(err, ErrDailyCapReached) {
		t.Errorf("Start() error = %v, want ErrDailyCapReached", err)
	}
}

func TestPauseResume(t *testing.T) {
	f := newDispatcherFixture(t)
	campaign := f.seedCampaign(t, models.CampaignRunning)
	ctx := context.Background()

	paused, err := f.dispatcher.Pause(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != models.CampaignPaused {
		t.Errorf("status after pause = %s, want paused", paused.Status)
	}

	// Pausing again fails the precondition
	if _, err := f.dispatcher.Pause(ctx, campaign.ID); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Pause() error = %v, want ErrNotRunning", err)
	}

	resumed, err := f.dispatcher.Resume(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.CampaignRunning {
		t.Errorf("status after resume = %s, want running", resumed.Status)
	}

	if _, err := f.dispatcher.Resume(ctx, campaign.ID); !errors.Is(err, ErrNotPaused) {
		t.Errorf("second Resume() error = %v, want ErrNotPaused", err)
	}
}

func TestPauseMissingCampaign(t *testing.T) {
	f := newDispatcherFixture(t)

	_, err := f.dispatcher.Pause(context.Background(), "missing")
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("Pause() error = %v, want ErrCampaignNotFound", err)
	}
}

func TestCancelCancelsPendingJobs(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 3)
	campaign := f.seedCampaign(t, models.CampaignDraft)
	ctx := context.Background()

	if _, err := f.dispatcher.Start(ctx, campaign.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	result, err := f.dispatcher.Cancel(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if result.JobsCancelled != 3 {
		t.Errorf("JobsCancelled = %d, want 3", result.JobsCancelled)
	}
	if result.Campaign.Status != models.CampaignCancelled {
		t.Errorf("campaign status = %s, want cancelled", result.Campaign.Status)
	}

	if _, err := f.dispatcher.Cancel(ctx, campaign.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second Cancel() error = %v, want ErrNotCancellable", err)
	}
}

func TestRetryJob(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 1)
	campaign := f.seedCampaign(t, models.CampaignDraft)
	ctx := context.Background()

	if _, err := f.dispatcher.Start(ctx, campaign.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	jobs, err := f.jobs.List(models.JobListFilter{CampaignID: campaign.ID})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("List() = %d jobs, %v", len(jobs), err)
	}
	jobID := jobs[0].ID

	// Only failed jobs can be retried
	if _, err := f.dispatcher.RetryJob(ctx, jobID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("RetryJob(pending) error = %v, want ErrNotRetryable", err)
	}

	if _, err := f.jobs.Claim(jobID); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := f.jobs.MarkFailed(jobID, "upload rejected"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	enqueued := f.q.count()
	retried, err := f.dispatcher.RetryJob(ctx, jobID)
	if err != nil {
		t.Fatalf("RetryJob() error = %v", err)
	}
	if retried.Status != models.JobPending {
		t.Errorf("status after retry = %s, want pending", retried.Status)
	}
	if f.q.count() != enqueued+1 {
		t.Errorf("retry did not enqueue a message")
	}

	if _, err := f.dispatcher.RetryJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RetryJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestRetryAllFailedSkipsExhausted(t *testing.T) {
	f := newDispatcherFixture(t)
	f.seedAccounts(t, 2)
	campaign := f.seedCampaign(t, models.CampaignDraft)
	ctx := context.Background()

	if _, err := f.dispatcher.Start(ctx, campaign.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	jobs, err := f.jobs.List(models.JobListFilter{CampaignID: campaign.ID})
	if err != nil || len(jobs) != 2 {
		t.Fatalf("List() = %d jobs, %v", len(jobs), err)
	}

	// First job fails with retries left
	if _, err := f.jobs.Claim(jobs[0].ID); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := f.jobs.MarkFailed(jobs[0].ID, "transient"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	// Second job exhausts its ceiling before failing
	for i := 0; i < jobs[1].MaxRetries; i++ {
		if _, err := f.jobs.Claim(jobs[1].ID); err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if _, err := f.jobs.MarkRetrying(jobs[1].ID, "transient"); err != nil {
			t.Fatalf("MarkRetrying() error = %v", err)
		}
	}
	if _, err := f.jobs.Claim(jobs[1].ID); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if _, err := f.jobs.MarkFailed(jobs[1].ID, "still failing"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	retried, err := f.dispatcher.RetryAllFailed(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("RetryAllFailed() error = %v", err)
	}
	if len(retried) != 1 {
		t.Fatalf("RetryAllFailed() retried %d jobs, want 1", len(retried))
	}
	if retried[0].ID != jobs[0].ID {
		t.Errorf("retried job %s, want %s", retried[0].ID, jobs[0].ID)
	}
}

func TestEnqueueMaintenanceTasks(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	if err := f.dispatcher.EnqueueAccountTest(ctx, "acc-1"); err != nil {
		t.Fatalf("EnqueueAccountTest() error = %v", err)
	}
	if err := f.dispatcher.EnqueueProxyCheck(ctx, "proxy-1"); err != nil {
		t.Fatalf("EnqueueProxyCheck() error = %v", err)
	}
	if err := f.dispatcher.EnqueueBatchProcess(ctx, "camp-1", 5); err != nil {
		t.Fatalf("EnqueueBatchProcess() error = %v", err)
	}

	if f.q.count() != 3 {
		t.Fatalf("enqueued %d messages, want 3", f.q.count())
	}
	if f.q.messages[0].Class != queue.ClassAccountTest {
		t.Errorf("message 0 class = %s, want account_test", f.q.messages[0].Class)
	}
	if f.q.messages[1].Class != queue.ClassProxyCheck {
		t.Errorf("message 1 class = %s, want proxy_check", f.q.messages[1].Class)
	}
	if f.q.messages[2].Class != queue.ClassBatchProcess {
		t.Errorf("message 2 class = %s, want batch_process", f.q.messages[2].Class)
	}
	if f.q.messages[2].Count != 5 {
		t.Errorf("batch message count = %d, want 5", f.q.messages[2].Count)
	}
}
