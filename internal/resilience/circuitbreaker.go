// Package resilience provides retry, circuit breaker and provider failover
// primitives for calls to remote dialogue backends.
//
// [Retry] repeats a call with a fixed backoff. [CircuitBreaker] is a classic
// three-state breaker (closed → open → half-open). [FallbackGroup] composes
// several instances of one provider type with per-entry circuit breakers so
// that a failing primary is bypassed in favour of healthy fallbacks.
//
// Time is read from an injected [clock.Clock] so tests can drive it.
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected with [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probe calls needed in the
	// half-open state before the breaker closes. Default: 3.
	HalfOpenMax int

	// Clock supplies the current time. Default: the wall clock.
	Clock clock.Clock

	// OnStateChange, if set, is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// Context cancellation is not counted as a failure: an interview that ends
// while a call is in flight says nothing about the backend's health.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	clock         clock.Clock
	onStateChange func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // last failure that (re)opened the breaker
	probes   int       // probe calls admitted while half-open
	probesOK int       // successful probes while half-open
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		clock:         cfg.Clock,
		onStateChange: cfg.OnStateChange,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 3
	}
	if cb.clock == nil {
		cb.clock = clock.New()
	}
	return cb
}

// Execute runs fn if the breaker allows it. While open it returns
// [ErrCircuitOpen] without calling fn; while half-open at most HalfOpenMax
// probe calls are admitted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probing, err)
	return err
}

// admit decides whether a call may run and reserves a probe slot when
// half-open.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if cb.clock.Since(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.probes++
		probing = true
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probing, nil
}

// settle accounts for the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probing bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case errors.Is(err, context.Canceled):
		if probing {
			cb.probes--
		}
	case err != nil:
		cb.openedAt = cb.clock.Now()
		if probing {
			cb.moveTo(StateOpen)
			break
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.maxFailures {
			cb.moveTo(StateOpen)
		}
	case probing:
		cb.probesOK++
		if cb.state == StateHalfOpen && cb.probesOK >= cb.halfOpenMax {
			cb.moveTo(StateClosed)
		}
	default:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// moveTo switches state and clears the counters of the state being left.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) moveTo(to State) {
	from := cb.state
	cb.state = to
	cb.probes, cb.probesOK = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}

	switch {
	case to == StateOpen && from == StateHalfOpen:
		slog.Warn("circuit breaker re-opened by failed probe", "name", cb.name)
	case to == StateOpen:
		slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.failures)
	case to == StateHalfOpen:
		slog.Info("circuit breaker probing", "name", cb.name, "probes", cb.halfOpenMax)
	case to == StateClosed && from == StateHalfOpen:
		slog.Info("circuit breaker closed after successful probes", "name", cb.name)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current [State] of the breaker. An open breaker whose
// reset timeout has elapsed reports [StateHalfOpen]; the switch itself
// happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.clock.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.moveTo(StateClosed)
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
