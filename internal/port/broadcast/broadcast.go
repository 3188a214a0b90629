// Package broadcast defines the port for publishing real-time workflow and
// agent events to connected clients and external subscribers.
package broadcast

import "context"

// Broadcaster publishes a typed event to all subscribers.
type Broadcaster interface {
	// BroadcastEvent sends a typed event with an arbitrary payload.
	// Implementations must not block workflow execution on slow consumers.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Multi fans one event out to several broadcasters.
type Multi []Broadcaster

func (m Multi) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range m {
		b.BroadcastEvent(ctx, eventType, payload)
	}
}

// Noop discards all events. Used when no transport is configured.
type Noop struct{}

func (Noop) BroadcastEvent(context.Context, string, any) {}
