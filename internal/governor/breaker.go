package governor

import (
	"sync"
	"time"
)

const (
	defaultFailureLimit = 5
	defaultResetWindow  = 5 * time.Minute
)

// breaker is the process-local circuit breaker. open implies openedAt is
// set; once resetWindow elapses past openedAt the next check closes the
// breaker and zeroes the streak.
type breaker struct {
	now          func() time.Time
	failureLimit int
	resetWindow  time.Duration

	mu                  sync.Mutex
	consecutiveFailures int
	open                bool
	openedAt            time.Time
}

// recordFailure increments the streak. Returns true only on the transition
// edge where the streak reaches the limit, not on later calls while open.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	if b.open || b.consecutiveFailures < b.failureLimit {
		return false
	}
	b.open = true
	b.openedAt = b.now()
	return true
}

// recordSuccess zeroes the streak and closes the breaker unconditionally.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.open = false
	b.openedAt = time.Time{}
}

// isOpen reports breaker state, auto-closing after the reset window.
func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false
	}
	if b.now().Sub(b.openedAt) >= b.resetWindow {
		b.open = false
		b.openedAt = time.Time{}
		b.consecutiveFailures = 0
		return false
	}
	return true
}
