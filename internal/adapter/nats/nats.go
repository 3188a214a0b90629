// Package nats implements the broadcast port over NATS JetStream, so
// external consumers can follow workflow and agent events.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "FRAUDGRID"

// publishTimeout bounds how long a broadcast may block on JetStream.
const publishTimeout = 2 * time.Second

// Publisher implements broadcast.Broadcaster using NATS JetStream. Events
// land on subjects derived from the event type: workflow_created publishes
// to workflows.created, agent_registered to agents.registered.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// exists.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"workflows.>", "agents.>", "steps.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	logger.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js, logger: logger.With("component", "nats")}, nil
}

// BroadcastEvent publishes the event as JSON. Failures are logged, never
// surfaced: event delivery must not fail workflow execution.
func (p *Publisher) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	})
	if err != nil {
		p.logger.Error("marshal event failed", "event", eventType, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if _, err := p.js.Publish(pubCtx, subjectFor(eventType), data); err != nil {
		p.logger.Error("nats publish failed", "event", eventType, "error", err)
	}
}

// subjectFor maps an event type onto a stream subject: the first underscore
// splits the entity from the action.
func subjectFor(eventType string) string {
	entity, action, found := strings.Cut(eventType, "_")
	if !found {
		return "workflows." + eventType
	}
	switch entity {
	case "workflow":
		return "workflows." + action
	case "agent":
		return "agents." + action
	case "step":
		return "steps." + action
	default:
		return "workflows." + eventType
	}
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
