// Package breaker implements a three-state circuit breaker guarding calls
// to a degradable external dependency.
package breaker

import (
	"sync/atomic"
	"time"
)

// State is the breaker state.
type State int32

// Breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// TransitionHook observes state transitions (metrics, logging).
// Called outside any lock; must not block.
type TransitionHook func(from, to State)

// Breaker tracks consecutive failures of a wrapped dependency and rejects
// calls while the dependency is considered down.
//
// State machine: Closed -> Open after `threshold` consecutive failures;
// Open -> HalfOpen after `cooldown` has elapsed, admitting exactly one trial
// call; HalfOpen -> Closed on trial success, HalfOpen -> Open on trial failure.
//
// All transitions are CAS-based so the single-trial property of HalfOpen
// holds under concurrent callers: only the goroutine that wins the
// Open->HalfOpen CAS gets through.
type Breaker struct {
	threshold int32
	cooldown  time.Duration
	now       func() time.Time
	onChange  TransitionHook

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64 // unix nanos of the last Closed/HalfOpen -> Open transition
}

// New creates a breaker. threshold is the number of consecutive failures
// that opens the circuit; cooldown is how long Open rejects before allowing
// a trial call.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		threshold: int32(threshold),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock overrides the time source (tests).
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// WithTransitionHook registers a transition observer.
func (b *Breaker) WithTransitionHook(hook TransitionHook) *Breaker {
	b.onChange = hook
	return b
}

// Allow reports whether a call may proceed. In the Open state it flips to
// HalfOpen once the cooldown has elapsed and admits exactly one caller.
func (b *Breaker) Allow() bool {
	for {
		switch State(b.state.Load()) {
		case Closed:
			return true
		case HalfOpen:
			// Trial call already in flight.
			return false
		case Open:
			openedAt := time.Unix(0, b.openedAt.Load())
			if b.now().Sub(openedAt) <= b.cooldown {
				return false
			}
			if b.state.CompareAndSwap(int32(Open), int32(HalfOpen)) {
				b.notify(Open, HalfOpen)
				return true
			}
			// Lost the race; re-read the state.
		}
	}
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	prev := State(b.state.Swap(int32(Closed)))
	b.failures.Store(0)
	if prev != Closed {
		b.notify(prev, Closed)
	}
}

// Failure records a failed call. In Closed it counts toward the threshold;
// in HalfOpen it reopens the circuit and restarts the cooldown.
func (b *Breaker) Failure() {
	for {
		switch State(b.state.Load()) {
		case HalfOpen:
			b.openedAt.Store(b.now().UnixNano())
			if b.state.CompareAndSwap(int32(HalfOpen), int32(Open)) {
				b.notify(HalfOpen, Open)
				return
			}
			// Concurrent Success flipped us to Closed; count as a regular failure.
		case Closed:
			if b.failures.Add(1) < b.threshold {
				return
			}
			b.openedAt.Store(b.now().UnixNano())
			if b.state.CompareAndSwap(int32(Closed), int32(Open)) {
				b.notify(Closed, Open)
			}
			return
		case Open:
			return
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// ConsecutiveFailures returns the current failure streak in the Closed state.
func (b *Breaker) ConsecutiveFailures() int {
	return int(b.failures.Load())
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
