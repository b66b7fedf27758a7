// Package breaker guards BlobStore uploads: three consecutive failures trip
// it open, a single probe is let through after cooldown, and a successful
// probe closes it again.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

// CircuitBreaker trips after ConsecutiveTrip consecutive failures, blocks
// all calls for Cooldown, then allows exactly one half-open probe.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	cooldown         time.Duration
	consecutiveTrip  int
	consecutiveFails int
	lastTransition   time.Time
	halfOpenInFlight bool
}

// New builds a breaker that opens after consecutiveTrip consecutive
// failures and waits cooldown before allowing a single half-open probe.
func New(cooldown time.Duration, consecutiveTrip int) *CircuitBreaker {
	if consecutiveTrip < 1 {
		consecutiveTrip = 1
	}
	return &CircuitBreaker{
		state:           Closed,
		cooldown:        cooldown,
		consecutiveTrip: consecutiveTrip,
		lastTransition:  time.Now(),
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed. In Open state it promotes to
// HalfOpen and returns true exactly once cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) >= cb.cooldown {
			cb.state = HalfOpen
			cb.lastTransition = time.Now()
			cb.halfOpenInFlight = true
			return true
		}
		return false
	case HalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of a call previously allowed by Allow.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()

	switch cb.state {
	case HalfOpen:
		cb.halfOpenInFlight = false
		if ok {
			cb.state = Closed
			cb.consecutiveFails = 0
		} else {
			cb.state = Open
			cb.consecutiveFails = cb.consecutiveTrip
		}
		cb.lastTransition = now
	case Closed:
		if ok {
			cb.consecutiveFails = 0
			return
		}
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.consecutiveTrip {
			cb.state = Open
			cb.lastTransition = now
		}
	case Open:
		// Reaching Record while still Open means a caller bypassed Allow;
		// nothing to update, Allow's cooldown check owns the transition.
	}
}
