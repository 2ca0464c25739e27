package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"postflow/internal/models"
)

type mockAccountSource struct {
	selectFn func(filters models.SelectionFilters, strategy models.SelectionStrategy) ([]models.Account, error)
}

func (m *mockAccountSource) SelectEligible(filters models.SelectionFilters, strategy models.SelectionStrategy) ([]models.Account, error) {
	return m.selectFn(filters, strategy)
}

func testAccounts(n int) []models.Account {
	accounts := make([]models.Account, n)
	for i := range accounts {
		accounts[i] = models.Account{
			ID:    fmt.Sprintf("acc-%d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
		}
	}
	return accounts
}

func campaignWith(strategy models.SelectionStrategy, max int) *models.Campaign {
	return &models.Campaign{
		ID: "camp-1",
		Selection: models.SelectionPolicy{
			Strategy:    strategy,
			MaxAccounts: max,
		},
	}
}

func TestSelectNoEligibleAccounts(t *testing.T) {
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(models.SelectionFilters, models.SelectionStrategy) ([]models.Account, error) {
			return nil, nil
		},
	})

	_, err := allocator.Select(campaignWith(models.StrategyAll, 0))
	if !errors.Is(err, ErrNoEligibleAccounts) {
		t.Errorf("Select() error = %v, want ErrNoEligibleAccounts", err)
	}
}

func TestSelectPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("database unavailable")
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(models.SelectionFilters, models.SelectionStrategy) ([]models.Account, error) {
			return nil, wantErr
		},
	})

	_, err := allocator.Select(campaignWith(models.StrategyAll, 0))
	if !errors.Is(err, wantErr) {
		t.Errorf("Select() error = %v, want %v", err, wantErr)
	}
}

func TestSelectAllReturnsEverything(t *testing.T) {
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(models.SelectionFilters, models.SelectionStrategy) ([]models.Account, error) {
			return testAccounts(5), nil
		},
	})

	got, err := allocator.Select(campaignWith(models.StrategyAll, 0))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 5 {
		t.Errorf("Select() returned %d accounts, want 5", len(got))
	}
}

func TestSelectOrderedStrategyCutsHead(t *testing.T) {
	for _, strategy := range []models.SelectionStrategy{models.StrategyRoundRobin, models.StrategyLeastUsed, models.StrategyAll} {
		t.Run(string(strategy), func(t *testing.T) {
			allocator := NewAllocator(&mockAccountSource{
				selectFn: func(_ models.SelectionFilters, s models.SelectionStrategy) ([]models.Account, error) {
					if s != strategy {
						t.Errorf("SelectEligible called with strategy %s, want %s", s, strategy)
					}
					return testAccounts(5), nil
				},
			})

			got, err := allocator.Select(campaignWith(strategy, 3))
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("Select() returned %d accounts, want 3", len(got))
			}
			// Repository ordering ranks the accounts, the cut keeps the head
			for i, acc := range got {
				if want := fmt.Sprintf("acc-%d", i); acc.ID != want {
					t.Errorf("Select()[%d].ID = %s, want %s", i, acc.ID, want)
				}
			}
		})
	}
}

func TestSelectRandomSamplesWithoutReplacement(t *testing.T) {
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(models.SelectionFilters, models.SelectionStrategy) ([]models.Account, error) {
			return testAccounts(10), nil
		},
	})

	got, err := allocator.Select(campaignWith(models.StrategyRandom, 4))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Select() returned %d accounts, want 4", len(got))
	}

	seen := make(map[string]bool)
	for _, acc := range got {
		if seen[acc.ID] {
			t.Errorf("account %s selected twice", acc.ID)
		}
		seen[acc.ID] = true
	}
}

func TestSelectRandomBelowMaxReturnsAll(t *testing.T) {
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(models.SelectionFilters, models.SelectionStrategy) ([]models.Account, error) {
			return testAccounts(3), nil
		},
	})

	got, err := allocator.Select(campaignWith(models.StrategyRandom, 10))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Select() returned %d accounts, want all 3", len(got))
	}
}

func TestSelectPassesFilters(t *testing.T) {
	var gotFilters models.SelectionFilters
	allocator := NewAllocator(&mockAccountSource{
		selectFn: func(filters models.SelectionFilters, _ models.SelectionStrategy) ([]models.Account, error) {
			gotFilters = filters
			return testAccounts(1), nil
		},
	})

	campaign := campaignWith(models.StrategyAll, 0)
	campaign.Selection.Filters = models.SelectionFilters{ProxyID: "proxy-1", ProfileID: "profile-2"}

	if _, err := allocator.Select(campaign); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if gotFilters.ProxyID != "proxy-1" || gotFilters.ProfileID != "profile-2" {
		t.Errorf("SelectEligible received filters %+v", gotFilters)
	}
}
