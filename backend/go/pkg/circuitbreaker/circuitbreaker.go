package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where calls pass through.
	Closed State = iota
	// Open blocks every call until the cool-down elapses.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a Breaker.
type Option func(*Breaker)

// WithStateChange registers a hook called (outside the lock) on every transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// Breaker guards calls to an unreliable upstream.
type Breaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
	probing   bool

	onChange func(from, to State)
	now      func() time.Time
}

// New creates a Breaker.
// failureThreshold consecutive failures open the circuit; successThreshold
// consecutive successful probes close it again; timeout is the open cool-down.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, promoting Open to HalfOpen once the cool-down elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	transition, err := b.before()
	b.notify(transition)
	if err != nil {
		return err
	}
	callErr := fn()
	b.notify(b.after(callErr == nil))
	return callErr
}

type change struct {
	from, to State
	changed  bool
}

func (b *Breaker) before() (change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var c change
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		c = b.setState(HalfOpen)
	}
	switch b.state {
	case Open:
		return c, ErrCircuitOpen
	case HalfOpen:
		if b.probing {
			return c, ErrCircuitOpen
		}
		b.probing = true
	}
	return c, nil
}

func (b *Breaker) after(ok bool) change {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if !ok {
			return b.trip()
		}
		b.successes++
		if b.successes >= b.successThreshold {
			return b.setState(Closed)
		}
	case Closed:
		if ok {
			b.failures = 0
			return change{}
		}
		b.failures++
		if b.failures >= b.failureThreshold {
			return b.trip()
		}
	}
	return change{}
}

func (b *Breaker) trip() change {
	b.openedAt = b.now()
	return b.setState(Open)
}

// setState must be called with the lock held.
func (b *Breaker) setState(to State) change {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probing = false
	return change{from: from, to: to, changed: from != to}
}

func (b *Breaker) notify(c change) {
	if c.changed && b.onChange != nil {
		b.onChange(c.from, c.to)
	}
}
