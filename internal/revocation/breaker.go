package revocation

import (
	"sync"
	"time"
)

// CircuitBreaker tracks whether the issuing backend is known to be down. It
// never blocks a call: every hard lock gets its one attempt. While open,
// further failures are expected and reported quietly. The open state lapses
// after cooldown so a lasting outage is surfaced again.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
}

// NewCircuitBreaker opens after threshold consecutive failures and stays open
// for cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.openUntil = time.Time{}
}

// RecordFailure counts a failed call and reports whether the breaker was
// already open before it.
func (cb *CircuitBreaker) RecordFailure() (wasOpen bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	wasOpen = cb.openLocked()
	cb.failures++
	if !wasOpen && cb.failures >= cb.threshold {
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
	return wasOpen
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.openLocked()
}

func (cb *CircuitBreaker) openLocked() bool {
	return !cb.openUntil.IsZero() && !cb.now().After(cb.openUntil)
}
