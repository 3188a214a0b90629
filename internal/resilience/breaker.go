// Package resilience provides reliability patterns for agent calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible circuit state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker implements a circuit breaker for calls to one agent. It tracks
// consecutive failures and opens the circuit when a threshold is reached,
// rejecting further calls until a cooldown elapses.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and stays open for the cooldown before transitioning
// to half-open.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn if the circuit is closed or half-open.
// Returns ErrCircuitOpen if the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

// CurrentState returns the circuit state, accounting for cooldown expiry.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.state = StateClosed
}

// Group manages one breaker per agent, created lazily with shared settings.
// A flapping agent trips only its own circuit; healthy agents keep serving.
type Group struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	cooldown    time.Duration
}

// NewGroup creates an empty breaker group.
func NewGroup(maxFailures int, cooldown time.Duration) *Group {
	return &Group{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// For returns the breaker for the given agent, creating it on first use.
func (g *Group) For(agentID string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[agentID]
	if !ok {
		b = NewBreaker(g.maxFailures, g.cooldown)
		g.breakers[agentID] = b
	}
	return b
}

// States returns the current circuit state per agent.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]State, len(g.breakers))
	for id, b := range g.breakers {
		out[id] = b.CurrentState()
	}
	return out
}

// Forget drops the breaker for an agent, typically on unregister.
func (g *Group) Forget(agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.breakers, agentID)
}
