// Package resilience provides the circuit breaker guarding the Bridging
// Scorer's external classifier calls (spec.md §4.G): once MaxFailures
// consecutive calls fail, the breaker opens and ScoringItemError failures
// stop being attempted individually in favor of a single CircuitOpen
// failure, until HalfOpenMax half-open probes succeed.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
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

// Common errors.
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config parameterizes a CircuitBreaker.
type Config struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(from, to State)
}

// DefaultConfig guards the Bridging Scorer's individual classifier calls
// against a burst of outright failures (timeouts, connection resets, 5xx).
// It is deliberately looser than the scorer's own walk-level error-rate
// trip (processed >= 10 and rate > 10%, see internal/bridging): that check
// reacts to a sustained bad ratio across many items, while this breaker
// reacts fast to five failures in a row regardless of how many items have
// succeeded, so a dead classifier endpoint stops burning rate-limiter
// tokens well before the walk-level check would accumulate enough samples.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// CircuitBreaker implements the classic closed/open/half-open pattern.
type CircuitBreaker struct {
	mu           sync.RWMutex
	config       Config
	state        State
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

// New creates a CircuitBreaker starting in the closed state.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// NewNamed is New plus state-transition logging: it wraps whatever
// OnStateChange the caller already set (if any) so the caller's hook still
// fires, and additionally logs every transition through log with name and
// both states attached, at Warn when the breaker opens (the direction that
// pages someone) and Info otherwise. The Bridging Scorer is the only
// breaker in the worker today, so name is "bridging-scorer-classifier",
// but the parameter keeps this from being a one-off.
func NewNamed(name string, cfg Config, log *logger.Logger) *CircuitBreaker {
	prior := cfg.OnStateChange
	cfg.OnStateChange = func(from, to State) {
		entry := log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()})
		if to == StateOpen {
			entry.Warn("circuit breaker opened")
		} else {
			entry.Info("circuit breaker state change")
		}
		if prior != nil {
			prior(from, to)
		}
	}
	return New(cfg)
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn under circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(old, newState)
	}
}
