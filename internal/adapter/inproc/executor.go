// Package inproc implements the agent execution port with in-process
// handlers. It backs local development and the seeded dev agents; production
// deployments resolve remote executors instead.
package inproc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/port/agentexec"
)

// Executor dispatches capability calls to registered handlers. It implements
// both agentexec.Executor and agentexec.Resolver: every agent shares the
// same handler set.
type Executor struct {
	handlers *agentexec.HandlerMap
	logger   *slog.Logger
}

// New creates an executor over the given handler map.
func New(handlers *agentexec.HandlerMap, logger *slog.Logger) *Executor {
	return &Executor{
		handlers: handlers,
		logger:   logger.With("component", "inproc_executor"),
	}
}

// ExecutorFor returns the shared executor for any agent.
func (e *Executor) ExecutorFor(*agent.Resource) (agentexec.Executor, error) {
	return e, nil
}

// ExecuteCapability invokes the handler registered for the capability.
func (e *Executor) ExecuteCapability(ctx context.Context, cap capability.Type, payload map[string]any) (map[string]any, error) {
	h, ok := e.handlers.Handler(cap)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agentexec.ErrUnsupportedCapability, cap)
	}

	out, err := h(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", cap, err)
	}
	e.logger.Debug("capability executed", "capability", cap)
	return out, nil
}
