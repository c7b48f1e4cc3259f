// Package resilience guards the remote collaborators of the assistant
// (transcription, completion, synthesis) against outages.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// [FallbackGroup] tries several instances of one provider type in order, each
// behind its own breaker, and the typed wrappers ([STTFallback],
// [LLMFallback], [SynthFallback]) expose a group as the provider interface it
// wraps.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker, any failure re-opens it.
	StateHalfOpen
)

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

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero values
// select the defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now. Used by tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker allows it. Errors caused by the caller's own
// cancellation (context.Canceled, context.DeadlineExceeded) are returned but
// not counted as failures.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	change, err := cb.admit()
	cb.mu.Unlock()
	cb.notify(change)
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	switch {
	case err == nil:
		change = cb.succeeded()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		change = cb.abandoned()
	default:
		change = cb.failed()
	}
	cb.mu.Unlock()
	cb.notify(change)
	return err
}

type transition struct {
	from, to State
}

// admit decides whether a call may proceed. cb.mu must be held.
func (cb *CircuitBreaker) admit() (*transition, error) {
	var change *transition
	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return nil, ErrCircuitOpen
		}
		change = cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return change, ErrCircuitOpen
		}
		cb.probes++
	}
	return change, nil
}

func (cb *CircuitBreaker) succeeded() *transition {
	if cb.state != StateHalfOpen {
		cb.consecutiveFail = 0
		return nil
	}
	cb.probeSuccesses++
	if cb.probeSuccesses < cb.cfg.HalfOpenMax {
		return nil
	}
	return cb.setState(StateClosed)
}

func (cb *CircuitBreaker) failed() *transition {
	cb.consecutiveFail++
	if cb.state == StateHalfOpen || cb.consecutiveFail >= cb.cfg.MaxFailures {
		cb.openedAt = cb.cfg.Now()
		return cb.setState(StateOpen)
	}
	return nil
}

// abandoned returns an unused probe slot.
func (cb *CircuitBreaker) abandoned() *transition {
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	return nil
}

// setState resets the counters belonging to the new state. cb.mu must be held.
func (cb *CircuitBreaker) setState(to State) *transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.probes, cb.probeSuccesses = 0, 0
	if to == StateClosed {
		cb.consecutiveFail = 0
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t == nil {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: circuit breaker state changed",
		"name", cb.cfg.Name,
		"from", t.from,
		"to", t.to,
	)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.setState(StateClosed)
	cb.consecutiveFail = 0
	cb.mu.Unlock()
	cb.notify(change)
}
