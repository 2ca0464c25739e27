package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"postflow/internal/models"
)

// AccountSource is the slice of the account store the allocator needs
type AccountSource interface {
	SelectEligible(filters models.SelectionFilters, strategy models.SelectionStrategy) ([]models.Account, error)
}

// Allocator resolves a campaign's selection policy into an ordered list of
// eligible accounts. Ordering is stable per strategy so delay computation
// stays deterministic; only the random strategy shuffles.
type Allocator struct {
	accounts AccountSource

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator over the given account source
func NewAllocator(accounts AccountSource) *Allocator {
	return &Allocator{
		accounts: accounts,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select returns the accounts a campaign will post through.
// Fails with ErrNoEligibleAccounts when filtering leaves nothing, which
// must abort dispatch before any job is created.
func (a *Allocator) Select(c *models.Campaign) ([]models.Account, error) {
	policy := c.Selection

	eligible, err := a.accounts.SelectEligible(policy.Filters, policy.Strategy)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleAccounts
	}

	max := policy.MaxAccounts

	if policy.Strategy == models.StrategyRandom {
		if max > 0 && max < len(eligible) {
			return a.sample(eligible, max), nil
		}
		return eligible, nil
	}

	// all, round_robin, least_used: the repository ordering already ranks
	// accounts, so a max-count cut takes the head of the list.
	if max > 0 && max < len(eligible) {
		eligible = eligible[:max]
	}
	return eligible, nil
}

// sample draws a uniform sample of size n without replacement
func (a *Allocator) sample(accounts []models.Account, n int) []models.Account {
	a.mu.Lock()
	perm := a.rng.Perm(len(accounts))
	a.mu.Unlock()

	picked := make([]models.Account, 0, n)
	for _, idx := range perm[:n] {
		picked = append(picked, accounts[idx])
	}
	return picked
}
