// Package resilience keeps the service answering while individual providers
// misbehave.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) placed
// in front of one provider. [Chain] orders a primary provider and its
// fallbacks, each behind its own breaker, and serves every call from the
// first entry that succeeds. The typed wrappers [LLM], [TTS] and [STT]
// implement the provider interfaces on top of a chain so callers never see
// the failover.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
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
	}
	return "unknown"
}

// Breaker defaults.
const (
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
	DefaultHalfOpenProbes = 2
)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithMaxFailures sets the consecutive failures that open the breaker.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithHalfOpenProbes sets how many successful probes close the breaker again.
// At most this many calls are in flight while half-open.
func WithHalfOpenProbes(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probes = n
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probes       int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker returns a closed breaker. name labels its log records.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  DefaultMaxFailures,
		resetTimeout: DefaultResetTimeout,
		probes:       DefaultHalfOpenProbes,
		now:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the label given to [NewBreaker].
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the breaker is open. A call that fails because ctx was
// cancelled is not held against the provider.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(probe)
		return err
	}
	b.record(probe, err == nil)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.probes {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A probe result that arrives after the state moved on is stale.
	if probe && b.state != StateHalfOpen {
		return
	}
	switch {
	case probe && ok:
		b.inFlight--
		b.successes++
		if b.successes >= b.probes {
			b.transition(StateClosed)
		}
	case probe:
		b.transition(StateOpen)
	case ok:
		b.failures = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.failures, b.inFlight, b.successes = 0, 0, 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: circuit state changed", "name", b.name, "from", from.String(), "to", to.String())
}

// State reports the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failures = 0
}
