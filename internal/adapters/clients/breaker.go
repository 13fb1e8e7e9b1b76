package clients

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateOpen rejects calls until the cool-down has passed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
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

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// HalfOpenLimit is both the number of concurrent probes and the number of
	// consecutive probe successes needed to close again.
	HalfOpenLimit int
}

// Counts is a snapshot of the breaker's counters.
type Counts struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	InFlightProbes       int
}

// Breaker guards the backend from calls while it is failing.
//
//	closed    -> open       after MaxFailures consecutive failures
//	open      -> half-open  once Cooldown has elapsed
//	half-open -> closed     after HalfOpenLimit consecutive successes
//	half-open -> open       on any failure
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	counts   Counts
	openedAt time.Time
	onChange func(from, to State)
	now      func() time.Time
}

// NewBreaker creates a closed breaker. Non-positive limits default to 1.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}

	if cfg.HalfOpenLimit < 1 {
		cfg.HalfOpenLimit = 1
	}

	return &Breaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run after every transition. fn is called
// without the breaker lock held, on the goroutine that caused the transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onChange = fn
}

// Allow reports whether a call may proceed. Every allowed call must be followed
// by exactly one Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	var (
		allowed bool
		changed func()
	)

	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			changed = b.setState(StateHalfOpen)
			b.counts.InFlightProbes = 1
			allowed = true
		}
	case StateHalfOpen:
		if b.counts.InFlightProbes < b.cfg.HalfOpenLimit {
			b.counts.InFlightProbes++
			allowed = true
		}
	}

	b.mu.Unlock()
	notify(changed)

	return allowed
}

// Success records a call that reached the backend and got an acceptable answer.
func (b *Breaker) Success() {
	b.mu.Lock()

	var changed func()

	switch b.state {
	case StateClosed:
		b.counts.ConsecutiveFailures = 0
	case StateHalfOpen:
		b.counts.InFlightProbes--
		b.counts.ConsecutiveSuccesses++

		if b.counts.ConsecutiveSuccesses >= b.cfg.HalfOpenLimit {
			changed = b.setState(StateClosed)
		}
	}

	b.mu.Unlock()
	notify(changed)
}

// Failure records a call that failed at the transport level or with a 5xx.
func (b *Breaker) Failure() {
	b.mu.Lock()

	var changed func()

	switch b.state {
	case StateClosed:
		b.counts.ConsecutiveFailures++

		if b.counts.ConsecutiveFailures >= b.cfg.MaxFailures {
			changed = b.setState(StateOpen)
		}
	case StateHalfOpen:
		changed = b.setState(StateOpen)
	}

	b.mu.Unlock()
	notify(changed)
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Counts returns a snapshot of the counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// setState switches state and resets counters. Caller holds b.mu.
// The returned func fires the change callback and must be run after unlocking.
func (b *Breaker) setState(to State) func() {
	from := b.state
	if from == to {
		return nil
	}

	b.state = to
	b.counts = Counts{}

	if to == StateOpen {
		b.openedAt = b.now()
	}

	fn := b.onChange
	if fn == nil {
		return nil
	}

	return func() { fn(from, to) }
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}
