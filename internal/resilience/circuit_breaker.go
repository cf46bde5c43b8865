// SPDX-License-Identifier: MIT

// Package resilience guards calls to flaky dependencies.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jbqubit/ndsp-highfinesse/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold    = 3
	defaultResetTimeout = 30 * time.Second
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker opens after threshold consecutive failures and lets a
// single probe through once resetTimeout has elapsed.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	probing      bool
	clock        clock
	onChange     func(from, to State)
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces the time source.
func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithStateChange registers a callback invoked on every transition. It runs
// with the breaker lock held and must not call back into the breaker.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 3 failures and 30s.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}

	cb := &CircuitBreaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetBreakerState(cb.name, string(cb.state))
	return cb
}

// Execute runs fn unless the breaker is open. A cancelled context is not
// counted as a failure of the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn(ctx)
	switch {
	case err == nil:
		cb.recordSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		cb.releaseProbe()
	default:
		cb.recordFailure()
	}
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.transitionTo(StateHalfOpen)
		cb.probing = true
		return true
	default:
		// half-open: one probe at a time
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.probing = false

	switch {
	case cb.state == StateHalfOpen:
		metrics.RecordBreakerTrip(cb.name, "probe_failed")
		cb.transitionTo(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		metrics.RecordBreakerTrip(cb.name, "threshold")
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	cb.transitionTo(StateClosed)
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

// transitionTo updates state and metrics. Caller must hold the lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	if newState == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetBreakerState(cb.name, string(newState))
	if cb.onChange != nil {
		cb.onChange(old, newState)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.transitionTo(StateClosed)
}
