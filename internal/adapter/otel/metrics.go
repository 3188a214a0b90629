// Package otel provides OpenTelemetry instrumentation for the HTTP surface
// and the workflow engine.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "fraudgrid"

// Metrics holds all FraudGrid metric instruments.
type Metrics struct {
	WorkflowsStarted   metric.Int64Counter
	WorkflowsCompleted metric.Int64Counter
	WorkflowsFailed    metric.Int64Counter
	WorkflowsCancelled metric.Int64Counter
	StepsCompleted     metric.Int64Counter
	StepsFailed        metric.Int64Counter
	StepDuration       metric.Float64Histogram
	WorkflowRisk       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("fraudgrid.workflows.started",
		metric.WithDescription("Number of workflows started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("fraudgrid.workflows.completed",
		metric.WithDescription("Number of workflows completed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFailed, err = meter.Int64Counter("fraudgrid.workflows.failed",
		metric.WithDescription("Number of workflows failed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCancelled, err = meter.Int64Counter("fraudgrid.workflows.cancelled",
		metric.WithDescription("Number of workflows cancelled"))
	if err != nil {
		return nil, err
	}

	m.StepsCompleted, err = meter.Int64Counter("fraudgrid.steps.completed",
		metric.WithDescription("Number of workflow steps completed"))
	if err != nil {
		return nil, err
	}

	m.StepsFailed, err = meter.Int64Counter("fraudgrid.steps.failed",
		metric.WithDescription("Number of workflow steps failed"))
	if err != nil {
		return nil, err
	}

	m.StepDuration, err = meter.Float64Histogram("fraudgrid.step.duration_ms",
		metric.WithDescription("Step execution time in milliseconds"))
	if err != nil {
		return nil, err
	}

	m.WorkflowRisk, err = meter.Float64Histogram("fraudgrid.workflow.risk_score",
		metric.WithDescription("Final risk score per completed workflow"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
