package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"postflow/internal/models"
)

// RetryPolicy decides retry eligibility and computes backoff delays.
// It is the single implementation shared by the dispatcher and the
// executor so both sides agree on retry math.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryPolicy creates a policy with exponential backoff between base
// and max delay
func NewRetryPolicy(base, max time.Duration) *RetryPolicy {
	if base <= 0 {
		base = time.Minute
	}
	if max <= 0 {
		max = 10 * time.Minute
	}
	if max < base {
		max = base
	}
	return &RetryPolicy{
		BaseDelay: base,
		MaxDelay:  max,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ShouldRetry reports whether a failed job gets another automatic attempt:
// the failure must be transient and the retry ceiling not yet reached.
func (p *RetryPolicy) ShouldRetry(j *models.Job, transient bool) bool {
	return transient && j.RetryCount < j.MaxRetries
}

// Backoff returns the delay before the given attempt (1-based). Attempt 1
// waits the base delay, each further attempt roughly doubles, bounded by
// the max delay. A ±20% jitter avoids retry alignment across jobs.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := p.BaseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxDelay {
			backoff = p.MaxDelay
			break
		}
	}

	p.mu.Lock()
	factor := 0.8 + 0.4*p.rng.Float64()
	p.mu.Unlock()

	jittered := time.Duration(float64(backoff) * factor)
	if jittered > p.MaxDelay {
		jittered = p.MaxDelay
	}
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}
