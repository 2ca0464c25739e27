package dispatch

import (
	"testing"
	"time"

	"postflow/internal/models"
)

func TestShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(time.Minute, 10*time.Minute)

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		transient  bool
		want       bool
	}{
		{"transient below ceiling", 0, 3, true, true},
		{"transient at last attempt", 2, 3, true, true},
		{"transient at ceiling", 3, 3, true, false},
		{"transient above ceiling", 5, 3, true, false},
		{"permanent failure", 0, 3, false, false},
		{"zero max retries", 0, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &models.Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			if got := policy.ShouldRetry(job, tt.transient); got != tt.want {
				t.Errorf("ShouldRetry(retry=%d, max=%d, transient=%v) = %v, want %v",
					tt.retryCount, tt.maxRetries, tt.transient, got, tt.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := time.Minute
	max := 10 * time.Minute
	policy := NewRetryPolicy(base, max)

	// Nominal doubling: 1m, 2m, 4m, 8m, then capped at 10m
	nominal := []time.Duration{
		time.Minute,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		10 * time.Minute,
		10 * time.Minute,
	}

	for attempt, want := range nominal {
		got := policy.Backoff(attempt + 1)

		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want) * 1.2)
		if hi > max {
			hi = max
		}

		if got < lo || got > hi {
			t.Errorf("Backoff(%d) = %v, want within [%v, %v]", attempt+1, got, lo, hi)
		}
	}
}

func TestBackoffNeverExceedsMax(t *testing.T) {
	policy := NewRetryPolicy(time.Minute, 5*time.Minute)

	for i := 0; i < 100; i++ {
		if got := policy.Backoff(20); got > 5*time.Minute {
			t.Fatalf("Backoff(20) = %v, exceeds max", got)
		}
	}
}

func TestBackoffClampsAttempt(t *testing.T) {
	policy := NewRetryPolicy(time.Minute, 10*time.Minute)

	got := policy.Backoff(0)
	if got < 48*time.Second || got > 72*time.Second {
		t.Errorf("Backoff(0) = %v, want base delay with jitter", got)
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	policy := NewRetryPolicy(0, 0)
	if policy.BaseDelay != time.Minute {
		t.Errorf("BaseDelay = %v, want 1m default", policy.BaseDelay)
	}
	if policy.MaxDelay != 10*time.Minute {
		t.Errorf("MaxDelay = %v, want 10m default", policy.MaxDelay)
	}

	// Max below base gets lifted to base
	policy = NewRetryPolicy(5*time.Minute, time.Minute)
	if policy.MaxDelay != 5*time.Minute {
		t.Errorf("MaxDelay = %v, want lifted to base 5m", policy.MaxDelay)
	}
}
