package executor

import (
	"time"

	"golang.org/x/time/rate"

	"postflow/internal/queue"
)

// ClassLimit bounds one task class: at most MaxInFlight concurrent
// executions across the pool, at most PerMinute starts per minute.
type ClassLimit struct {
	MaxInFlight int
	PerMinute   int
}

// DefaultClassLimits matches the production posture: uploads are slow,
// scarce and externally rate limited; maintenance tasks are cheap.
func DefaultClassLimits() map[queue.Class]ClassLimit {
	return map[queue.Class]ClassLimit{
		queue.ClassUpload:       {MaxInFlight: 3, PerMinute: 10},
		queue.ClassAccountTest:  {MaxInFlight: 2, PerMinute: 30},
		queue.ClassProxyCheck:   {MaxInFlight: 5, PerMinute: 60},
		queue.ClassBatchProcess: {MaxInFlight: 1, PerMinute: 6},
	}
}

// Limits enforces per-class concurrency and rate across all pool workers.
// Concurrency uses a channel semaphore per class; rate uses a token
// bucket per class.
type Limits struct {
	sems     map[queue.Class]chan struct{}
	limiters map[queue.Class]*rate.Limiter
}

// NewLimits builds limits from per-class configuration. Classes missing
// from cfg fall back to the defaults.
func NewLimits(cfg map[queue.Class]ClassLimit) *Limits {
	l := &Limits{
		sems:     make(map[queue.Class]chan struct{}),
		limiters: make(map[queue.Class]*rate.Limiter),
	}

	defaults := DefaultClassLimits()
	for _, class := range queue.Classes() {
		limit, ok := cfg[class]
		if !ok {
			limit = defaults[class]
		}
		if limit.MaxInFlight <= 0 {
			limit.MaxInFlight = 1
		}
		if limit.PerMinute <= 0 {
			limit.PerMinute = 60
		}

		l.sems[class] = make(chan struct{}, limit.MaxInFlight)
		l.limiters[class] = rate.NewLimiter(rate.Limit(float64(limit.PerMinute)/60.0), 1)
	}

	return l
}

// Admissible returns the classes that currently have a free concurrency
// slot. A worker only asks the queue for these.
func (l *Limits) Admissible() []queue.Class {
	classes := make([]queue.Class, 0, len(l.sems))
	for _, class := range queue.Classes() {
		sem := l.sems[class]
		if len(sem) < cap(sem) {
			classes = append(classes, class)
		}
	}
	return classes
}

// Acquire takes a concurrency slot for the class. Non-blocking; returns
// false when the class is saturated (a slot was taken between Admissible
// and now).
func (l *Limits) Acquire(class queue.Class) bool {
	select {
	case l.sems[class] <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a concurrency slot
func (l *Limits) Release(class queue.Class) {
	select {
	case <-l.sems[class]:
	default:
	}
}

// RateDelay consumes a rate token for the class if one is available now,
// or returns how long to wait for the next one without consuming it.
func (l *Limits) RateDelay(class queue.Class) time.Duration {
	r := l.limiters[class].Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return delay
	}
	return 0
}
