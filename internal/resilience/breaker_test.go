package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("agent unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := b.CurrentState(); got != StateOpen {
		t.Fatalf("state = %q, want open", got)
	}
}

func TestTransitionsToHalfOpenAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	// Still open
	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// Advance past cooldown
	now = now.Add(2 * time.Second)

	if got := b.CurrentState(); got != StateHalfOpen {
		t.Fatalf("state = %q, want half_open", got)
	}

	// Half-open allows one call; success closes the circuit
	called := false
	err = b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error in half-open, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called in half-open")
	}
	if got := b.CurrentState(); got != StateClosed {
		t.Fatalf("state = %q, want closed after half-open success", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}

	// Advance past cooldown to reach half-open
	now = now.Add(2 * time.Second)

	// Fail in half-open → should reopen
	_ = b.Execute(func() error { return errTest })

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	// Two failures
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	// One success resets
	_ = b.Execute(func() error { return nil })

	// Two more failures should not trip (only 2, need 3)
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestGroup_IsolatesAgents(t *testing.T) {
	g := NewGroup(2, time.Second)

	// Trip agent-1's circuit
	for i := 0; i < 2; i++ {
		_ = g.For("agent-1").Execute(func() error { return errTest })
	}

	if err := g.For("agent-1").Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("agent-1: expected ErrCircuitOpen, got %v", err)
	}

	// agent-2 is unaffected
	if err := g.For("agent-2").Execute(func() error { return nil }); err != nil {
		t.Fatalf("agent-2: expected no error, got %v", err)
	}

	states := g.States()
	if states["agent-1"] != StateOpen || states["agent-2"] != StateClosed {
		t.Errorf("states = %v", states)
	}
}

func TestGroup_ForgetDropsBreaker(t *testing.T) {
	g := NewGroup(1, time.Second)
	_ = g.For("agent-1").Execute(func() error { return errTest })
	g.Forget("agent-1")

	// A fresh breaker is closed again
	if err := g.For("agent-1").Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected no error after forget, got %v", err)
	}
}
