// Package agentexec defines the agent execution port: how the orchestrator
// invokes a remote fraud-analysis agent's capability.
package agentexec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// ErrUnsupportedCapability is returned when an executor has no handler for
// the requested capability type.
var ErrUnsupportedCapability = errors.New("unsupported capability")

// Executor invokes one capability on the agent it represents. The payload
// and the returned result are capability-specific documents; the orchestrator
// only inspects the well-known confidence and risk_score keys.
type Executor interface {
	ExecuteCapability(ctx context.Context, cap capability.Type, payload map[string]any) (map[string]any, error)
}

// Resolver returns the executor for a given agent. In-process agents share
// one executor; remote agents get one bound to their endpoint.
type Resolver interface {
	ExecutorFor(res *agent.Resource) (Executor, error)
}

// Handler implements one capability's behavior for the in-process executor.
type Handler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// HandlerMap maps capability types to handlers. Instances are explicit
// dependencies of the executors that use them; there is no package-global
// registry, so two agents can carry different handler sets.
type HandlerMap struct {
	mu       sync.RWMutex
	handlers map[capability.Type]Handler
}

// NewHandlerMap creates an empty handler map.
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{handlers: make(map[capability.Type]Handler)}
}

// Register adds a handler for a capability type. Duplicate registration is
// a programming error and panics.
func (m *HandlerMap) Register(cap capability.Type, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.handlers[cap]; exists {
		panic(fmt.Sprintf("agentexec: duplicate handler for %q", cap))
	}
	m.handlers[cap] = h
}

// Handler returns the handler for a capability type.
func (m *HandlerMap) Handler(cap capability.Type) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.handlers[cap]
	return h, ok
}

// Available returns the registered capability types, sorted.
func (m *HandlerMap) Available() []capability.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	caps := make([]capability.Type, 0, len(m.handlers))
	for c := range m.handlers {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
