package repository

import (
	"testing"

	"postflow/internal/models"
)

func campaignFixture(t *testing.T) *CampaignRepository {
	t.Helper()
	return NewCampaignRepository(newTestDB(t).DB)
}

func seedCampaign(t *testing.T, campaigns *CampaignRepository) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		Name:            "launch",
		VideoPath:       "/videos/launch.mp4",
		CaptionTemplate: "new drop",
		Selection:       models.SelectionPolicy{Strategy: models.StrategyAll},
		Schedule:        models.ScheduleWindow{IntervalMinutes: 60},
	}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func TestCampaignCreateDefaultsToDraft(t *testing.T) {
	campaigns := campaignFixture(t)
	c := seedCampaign(t, campaigns)

	got, err := campaigns.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.CampaignDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
	if got.Selection.Strategy != models.StrategyAll {
		t.Errorf("selection strategy = %s, policy did not round trip", got.Selection.Strategy)
	}
	if got.Schedule.IntervalMinutes != 60 {
		t.Errorf("interval_minutes = %d, schedule did not round trip", got.Schedule.IntervalMinutes)
	}
}

func TestCampaignCreateRejectsInvalidPolicy(t *testing.T) {
	campaigns := campaignFixture(t)

	err := campaigns.Create(&models.Campaign{
		Name:      "bad",
		Selection: models.SelectionPolicy{Strategy: "coin_flip"},
	})
	if err == nil {
		t.Error("Create() accepted an unknown selection strategy")
	}
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	campaigns := campaignFixture(t)
	c := seedCampaign(t, campaigns)

	// Pausing a draft fails, it is not running
	ok, err := campaigns.MarkPaused(c.ID)
	if err != nil {
		t.Fatalf("MarkPaused() error = %v", err)
	}
	if ok {
		t.Error("MarkPaused(draft) succeeded")
	}

	ok, err = campaigns.MarkRunning(c.ID)
	if err != nil || !ok {
		t.Fatalf("MarkRunning() = %v, %v, want true", ok, err)
	}

	got, _ := campaigns.GetByID(c.ID)
	if got.StartedAt == nil {
		t.Error("started_at not stamped")
	}

	// Already running: refused
	ok, _ = campaigns.MarkRunning(c.ID)
	if ok {
		t.Error("MarkRunning(running) succeeded")
	}

	ok, err = campaigns.MarkPaused(c.ID)
	if err != nil || !ok {
		t.Fatalf("MarkPaused(running) = %v, %v, want true", ok, err)
	}
	ok, err = campaigns.MarkResumed(c.ID)
	if err != nil || !ok {
		t.Fatalf("MarkResumed(paused) = %v, %v, want true", ok, err)
	}

	ok, err = campaigns.MarkCompleted(c.ID)
	if err != nil || !ok {
		t.Fatalf("MarkCompleted(running) = %v, %v, want true", ok, err)
	}

	got, _ = campaigns.GetByID(c.ID)
	if got.Status != models.CampaignCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	// Terminal: no further transitions
	ok, _ = campaigns.MarkCancelled(c.ID)
	if ok {
		t.Error("MarkCancelled(completed) succeeded")
	}
}

func TestCampaignMarkRunningKeepsFirstStartedAt(t *testing.T) {
	campaigns := campaignFixture(t)
	c := seedCampaign(t, campaigns)

	if _, err := campaigns.MarkRunning(c.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	first, _ := campaigns.GetByID(c.ID)

	if _, err := campaigns.MarkPaused(c.ID); err != nil {
		t.Fatalf("MarkPaused() error = %v", err)
	}
	// MarkRunning from paused must keep the original start stamp
	if _, err := campaigns.MarkRunning(c.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	second, _ := campaigns.GetByID(c.ID)
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Errorf("started_at changed on resume: %v -> %v", first.StartedAt, second.StartedAt)
	}
}

func TestCampaignMarkCancelledFromPaused(t *testing.T) {
	campaigns := campaignFixture(t)
	c := seedCampaign(t, campaigns)

	if _, err := campaigns.MarkRunning(c.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if _, err := campaigns.MarkPaused(c.ID); err != nil {
		t.Fatalf("MarkPaused() error = %v", err)
	}

	ok, err := campaigns.MarkCancelled(c.ID)
	if err != nil || !ok {
		t.Fatalf("MarkCancelled(paused) = %v, %v, want true", ok, err)
	}
}
