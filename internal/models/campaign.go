package models

import (
	"fmt"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// SelectionStrategy decides which eligible accounts a campaign posts through
type SelectionStrategy string

const (
	StrategyAll        SelectionStrategy = "all"
	StrategyRandom     SelectionStrategy = "random"
	StrategyRoundRobin SelectionStrategy = "round_robin"
	StrategyLeastUsed  SelectionStrategy = "least_used"
)

// SelectionFilters narrows the eligible account set by exact match
type SelectionFilters struct {
	ProxyID   string `json:"proxy_id,omitempty" yaml:"proxy_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty" yaml:"profile_id,omitempty"`
}

// SelectionPolicy describes how accounts are chosen for a campaign.
// Validated at campaign creation, not at dispatch time.
type SelectionPolicy struct {
	Strategy    SelectionStrategy `json:"strategy"`
	Filters     SelectionFilters  `json:"filters,omitempty"`
	MaxAccounts int               `json:"max_accounts,omitempty"`
}

// Validate checks the policy for a closed strategy and sane limits
func (p SelectionPolicy) Validate() error {
	switch p.Strategy {
	case StrategyAll, StrategyRandom, StrategyRoundRobin, StrategyLeastUsed:
	case "":
		return fmt.Errorf("selection strategy is required")
	default:
		return fmt.Errorf("unknown selection strategy: %s", p.Strategy)
	}
	if p.MaxAccounts < 0 {
		return fmt.Errorf("max_accounts must not be negative")
	}
	return nil
}

// ScheduleWindow describes how job starts are spread over time
type ScheduleWindow struct {
	IntervalMinutes int `json:"interval_minutes"`
	MaxPerDay       int `json:"max_per_day,omitempty"`
}

// Validate checks the schedule window
func (s ScheduleWindow) Validate() error {
	if s.IntervalMinutes < 0 {
		return fmt.Errorf("interval_minutes must not be negative")
	}
	if s.MaxPerDay < 0 {
		return fmt.Errorf("max_per_day must not be negative")
	}
	return nil
}

// Campaign represents one video payload distributed across many accounts
type Campaign struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Status          CampaignStatus  `json:"status"`
	VideoPath       string          `json:"video_path"`
	CaptionTemplate string          `json:"caption_template"`
	Selection       SelectionPolicy `json:"selection"`
	Schedule        ScheduleWindow  `json:"schedule"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status CampaignStatus
	Limit  int
	Offset int
}
