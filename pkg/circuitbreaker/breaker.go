package circuitbreaker

import (
	"sync"
	"time"
)

// CircuitBreaker guards the durable store against repeated write failures.
// After threshold failures within the window it opens; while open, sweeps are
// skipped until the reset timeout elapses or an operator resets it.
type CircuitBreaker struct {
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	mu            sync.Mutex
}

// State is a snapshot of the breaker for health reporting
type State struct {
	Enabled      bool      `json:"enabled"`
	Open         bool      `json:"open"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(enabled bool, threshold int, window, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
	}
}

// RecordFailure records a failure and returns true if the circuit is now open
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	// An open circuit stays open until the reset timeout elapses
	if cb.tripped {
		if now.Sub(cb.tripTime) <= cb.resetTimeout {
			return true
		}
		cb.tripped = false
		cb.failureCount = 0
	}

	// Failures outside the window do not accumulate
	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
	}
	return cb.tripped
}

// RecordSuccess clears accumulated failures after a successful write
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.tripped = false
}

// IsOpen reports whether requests should currently be rejected
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && time.Since(cb.tripTime) > cb.resetTimeout {
		// Half-open: allow the next attempt through
		cb.tripped = false
		cb.failureCount = 0
	}
	return cb.tripped
}

// IsEnabled reports whether the breaker is active at all
func (cb *CircuitBreaker) IsEnabled() bool {
	return cb.enabled
}

// Reset closes the circuit and clears failure state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripped = false
	cb.failureCount = 0
}

// GetState returns a snapshot of the breaker for health reporting
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Enabled:      cb.enabled,
		Open:         cb.tripped,
		FailureCount: cb.failureCount,
		LastFailure:  cb.lastFailure,
	}
}
