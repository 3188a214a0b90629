package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fraudgrid/fraudgrid/internal/domain/workflow"
)

// Observer records workflow events as metrics. It implements the broadcast
// port so it can sit alongside the WebSocket hub and NATS publisher in a
// fan-out.
type Observer struct {
	metrics *Metrics
}

// NewObserver creates a metrics observer over the given instruments.
func NewObserver(m *Metrics) *Observer {
	return &Observer{metrics: m}
}

// BroadcastEvent maps a workflow event onto its metric instrument. Unknown
// event types are ignored.
func (o *Observer) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	switch eventType {
	case "workflow_started":
		o.metrics.WorkflowsStarted.Add(ctx, 1, intentAttr(payload))
	case "workflow_completed":
		o.metrics.WorkflowsCompleted.Add(ctx, 1)
		if agg, ok := payload.(workflow.AggregatedResult); ok {
			o.metrics.WorkflowRisk.Record(ctx, agg.RiskScore)
		}
	case "workflow_failed":
		o.metrics.WorkflowsFailed.Add(ctx, 1)
	case "workflow_cancelled":
		o.metrics.WorkflowsCancelled.Add(ctx, 1)
	case "step_completed":
		o.metrics.StepsCompleted.Add(ctx, 1, stepAttr(payload))
	case "step_failed":
		o.metrics.StepsFailed.Add(ctx, 1, stepAttr(payload))
	}
}

func intentAttr(payload any) metric.AddOption {
	m, _ := payload.(map[string]any)
	intentType, _ := m["intent_type"].(string)
	return metric.WithAttributes(attribute.String("intent_type", intentType))
}

func stepAttr(payload any) metric.AddOption {
	m, _ := payload.(map[string]any)
	stepID, _ := m["step_id"].(string)
	return metric.WithAttributes(attribute.String("step_id", stepID))
}
