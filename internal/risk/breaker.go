package risk

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig configures the execution circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failureThreshold"` // failures within the window to trip
	FailureWindow    time.Duration `json:"failureWindow"`    // rolling window for counting failures
	Cooldown         time.Duration `json:"cooldown"`         // open duration before probing
}

// DefaultBreakerConfig returns the standard breaker limits.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    10 * time.Minute,
		Cooldown:         300 * time.Second,
	}
}

// Breaker is an execution circuit breaker advanced as plain data: failures
// and cooldown timers are explicit fields, never hidden in goroutines or
// timers, so the state is fully inspectable.
//
// CLOSED: executions proceed; each failure is counted in a rolling window.
// OPEN: everything is rejected until the cooldown elapses.
// HALF_OPEN: exactly one probe per cycle is allowed; success closes the
// breaker, failure reopens it and restarts the cooldown.
type Breaker struct {
	mu       sync.Mutex
	config   BreakerConfig
	state    BreakerState
	failures []time.Time
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker in the CLOSED state.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config: config,
		state:  BreakerClosed,
	}
}

// Allow reports whether an execution may proceed. In HALF_OPEN the first
// call per cycle consumes the probe slot; the outcome must be reported via
// RecordSuccess or RecordFailure before another probe is granted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordFailure counts an execution failure. Trips the breaker when the
// threshold is reached, or reopens it if a probe failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.probing = false
		b.failures = nil
		return
	}

	b.failures = append(b.failures, now)
	b.pruneLocked(now)

	if b.state == BreakerClosed && len(b.failures) >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = now
		b.failures = nil
	}
}

// RecordSuccess reports a successful execution. A successful probe closes
// the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probing = false
	}
	b.failures = nil
}

// State returns the current state, promoting OPEN to HALF_OPEN once the
// cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.config.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Failures returns the current failure count inside the rolling window.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(time.Now())
	return len(b.failures)
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.config.FailureWindow)
	i := 0
	for ; i < len(b.failures); i++ {
		if b.failures[i].After(cutoff) {
			break
		}
	}
	b.failures = b.failures[i:]
}
