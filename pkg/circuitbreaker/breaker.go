// Package circuitbreaker sheds calls to the judgment provider and the
// knowledge graph once they fail consistently. An assessment run walks
// every element in scope sequentially; without shedding, a dead provider
// turns each remaining element into a full retry cycle and a run over a
// large chapter takes hours to fail.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many probes in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

type Config struct {
	MaxRequests      uint32        // probes admitted while half-open
	Interval         time.Duration // closed-state window before streaks reset
	Timeout          time.Duration // how long to stay open before probing
	FailureThreshold uint32        // consecutive failures that open the circuit
	SuccessThreshold uint32        // consecutive probe successes that close it
	OnStateChange    func(name string, from, to State)
	Logger           *zap.Logger
}

// Window is a snapshot of the current generation's call outcomes.
type Window struct {
	Requests            uint32
	Successes           uint32
	Failures            uint32
	ConsecutiveFailures uint32
	ConsecutiveSuccess  uint32
}

type CircuitBreaker struct {
	name             string
	maxRequests      uint32
	interval         time.Duration
	timeout          time.Duration
	failureThreshold uint32
	successThreshold uint32
	onStateChange    func(name string, from, to State)
	logger           *zap.Logger

	mu       sync.Mutex
	state    State
	era      uint64
	window   Window
	deadline time.Time
}

// NewCircuitBreaker applies defaults tuned for this system's upstreams: a
// 45s open period (judgment-provider incidents rarely clear faster), five
// consecutive failures to trip, two clean probes to recover, one probe at
// a time.
func NewCircuitBreaker(name string, cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		maxRequests:      cfg.MaxRequests,
		interval:         cfg.Interval,
		timeout:          cfg.Timeout,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		onStateChange:    cfg.OnStateChange,
		logger:           cfg.Logger,
	}
	if cb.maxRequests == 0 {
		cb.maxRequests = 1
	}
	if cb.timeout == 0 {
		cb.timeout = 45 * time.Second
	}
	if cb.failureThreshold == 0 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold == 0 {
		cb.successThreshold = 2
	}
	cb.reset(time.Now())
	return cb
}

// Execute runs fn if the circuit admits the call. The era guard keeps a
// slow in-flight call from corrupting the window after a state change. A
// panic in fn counts as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	era, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(era, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(era, err == nil)
	return err
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)

	switch {
	case cb.state == StateOpen:
		return cb.era, ErrCircuitOpen
	case cb.state == StateHalfOpen && cb.window.Requests >= cb.maxRequests:
		return cb.era, ErrTooManyRequests
	}

	cb.window.Requests++
	return cb.era, nil
}

func (cb *CircuitBreaker) settle(era uint64, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.advance(now)
	if cb.era != era {
		return
	}

	if ok {
		cb.window.Successes++
		cb.window.ConsecutiveSuccess++
		cb.window.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen && cb.window.ConsecutiveSuccess >= cb.successThreshold {
			cb.transition(StateClosed, now)
		}
		return
	}

	cb.window.Failures++
	cb.window.ConsecutiveFailures++
	cb.window.ConsecutiveSuccess = 0
	switch {
	case cb.state == StateClosed && cb.window.ConsecutiveFailures >= cb.failureThreshold:
		cb.transition(StateOpen, now)
	case cb.state == StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// advance applies time-based transitions: open circuits move to
// half-open after the timeout, closed windows reset after the interval.
func (cb *CircuitBreaker) advance(now time.Time) {
	switch cb.state {
	case StateClosed:
		if !cb.deadline.IsZero() && cb.deadline.Before(now) {
			cb.reset(now)
		}
	case StateOpen:
		if cb.deadline.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.reset(now)

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
	if cb.logger != nil {
		cb.logger.Info("Circuit breaker state changed",
			zap.String("name", cb.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
}

func (cb *CircuitBreaker) reset(now time.Time) {
	cb.era++
	cb.window = Window{}

	switch cb.state {
	case StateOpen:
		cb.deadline = now.Add(cb.timeout)
	case StateClosed:
		if cb.interval > 0 {
			cb.deadline = now.Add(cb.interval)
		} else {
			cb.deadline = time.Time{}
		}
	default:
		cb.deadline = time.Time{}
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Window {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.window
}
