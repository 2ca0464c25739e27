package executor

import "sync"

// accountLatch serializes job execution per account. The queue gives no
// ordering guarantee across an account's jobs, so a claimed message for
// an account that is already mid-upload is postponed instead of run.
type accountLatch struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newAccountLatch() *accountLatch {
	return &accountLatch{held: make(map[string]struct{})}
}

// tryAcquire takes the latch for an account, returning false when it is
// already held by another worker.
func (l *accountLatch) tryAcquire(accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[accountID]; busy {
		return false
	}
	l.held[accountID] = struct{}{}
	return true
}

func (l *accountLatch) release(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, accountID)
}
