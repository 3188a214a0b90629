package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fraudgrid/fraudgrid/internal/domain"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/domain/match"
	"github.com/fraudgrid/fraudgrid/internal/domain/template"
	"github.com/fraudgrid/fraudgrid/internal/domain/workflow"
	"github.com/fraudgrid/fraudgrid/internal/port/agentexec"
	"github.com/fraudgrid/fraudgrid/internal/port/broadcast"
	"github.com/fraudgrid/fraudgrid/internal/port/snapshot"
	"github.com/fraudgrid/fraudgrid/internal/resilience"
)

// ErrWorkflowNotRunnable indicates the workflow is not in a state that allows
// the requested transition.
var ErrWorkflowNotRunnable = errors.New("workflow is not runnable")

// ErrNoAgentForStep indicates agent matching produced no candidate for a
// required step's capability.
var ErrNoAgentForStep = errors.New("no suitable agent for required step")

// defaultStepConfidence is assumed when an agent's result carries no
// confidence field.
const defaultStepConfidence = 0.9

// OrchestratorConfig carries the execution tuning knobs.
type OrchestratorConfig struct {
	MaxParallel      int
	DefaultRetries   int
	StepTimeout      time.Duration
	UrgencyThreshold float64
}

// WorkflowSummary is one row in a workflow listing.
type WorkflowSummary struct {
	ID             string          `json:"workflow_id"`
	IntentID       string          `json:"intent_id"`
	IntentType     string          `json:"intent_type"`
	Status         workflow.Status `json:"status"`
	StepsTotal     int             `json:"steps_total"`
	StepsCompleted int             `json:"steps_completed"`
	StepsFailed    int             `json:"steps_failed"`
	RiskScore      float64         `json:"risk_score"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Orchestrator drives workflows end to end: template selection, agent
// matching, step execution with retries and circuit breaking, decision
// evaluation, and result aggregation.
type Orchestrator struct {
	templates *template.Manager
	matcher   *Matcher
	registry  *Registry
	resolver  agentexec.Resolver
	breakers  *resilience.Group
	store     snapshot.Store // optional
	events    broadcast.Broadcaster
	pool      *ExecPool
	cfg       OrchestratorConfig
	logger    *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*workflow.State
	order     []string

	now func() time.Time
}

// NewOrchestrator wires the orchestrator. store may be nil when persistence
// is not configured; events may be broadcast.Noop{}.
func NewOrchestrator(
	templates *template.Manager,
	matcher *Matcher,
	registry *Registry,
	resolver agentexec.Resolver,
	breakers *resilience.Group,
	store snapshot.Store,
	events broadcast.Broadcaster,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.DefaultRetries < 1 {
		cfg.DefaultRetries = workflow.DefaultMaxRetries
	}
	if events == nil {
		events = broadcast.Noop{}
	}
	return &Orchestrator{
		templates: templates,
		matcher:   matcher,
		registry:  registry,
		resolver:  resolver,
		breakers:  breakers,
		store:     store,
		events:    events,
		pool:      NewExecPool(cfg.MaxParallel),
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		workflows: make(map[string]*workflow.State),
		now:       time.Now,
	}
}

// SetClock replaces the orchestrator clock. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// CreateWorkflow instantiates a workflow for the intent: resolves its
// template, matches agents to every step, and registers a pending workflow
// instance. An empty templateName resolves the template by intent type;
// a non-empty one selects it by name, letting callers run a non-default
// template for an intent. Required steps without a matching agent fail
// creation.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, intentID, intentType string, input map[string]any, templateName string) (*workflow.State, error) {
	var (
		tmpl template.Template
		err  error
	)
	if templateName != "" {
		tmpl, err = o.templates.Get(templateName)
	} else {
		tmpl, err = o.templates.ForIntent(intentType)
	}
	if err != nil {
		return nil, err
	}

	selected, err := o.selectAgents(ctx, tmpl)
	if err != nil {
		return nil, err
	}

	state := workflow.NewState(uuid.NewString(), intentID, intentType)
	for k, v := range input {
		state.Input[k] = v
	}
	state.SelectedAgents = selected

	for _, spec := range tmpl.Steps {
		retries := o.cfg.DefaultRetries
		state.AddStep(&workflow.Step{
			ID:          spec.ID,
			Name:        spec.Name,
			Description: spec.Name,
			AgentID:     selected[spec.Capability],
			Capability:  spec.Capability,
			DependsOn:   append([]string(nil), spec.DependsOn...),
			MaxRetries:  retries,
		})
	}
	if tmpl.Flow.Type == template.FlowSequential {
		state.ChainSteps()
	}
	state.UpdateContext("template", tmpl.Name)

	o.mu.Lock()
	o.workflows[state.ID] = state
	o.order = append(o.order, state.ID)
	o.mu.Unlock()

	o.persist(ctx, state)
	o.events.BroadcastEvent(ctx, "workflow_created", map[string]any{
		"workflow_id": state.ID,
		"intent_id":   intentID,
		"intent_type": intentType,
		"template":    tmpl.Name,
		"steps":       len(tmpl.Steps),
	})
	o.logger.Info("created workflow", "workflow_id", state.ID,
		"intent_type", intentType, "template", tmpl.Name, "steps", len(tmpl.Steps))
	return state, nil
}

// selectAgents matches one agent per distinct capability in the template.
func (o *Orchestrator) selectAgents(ctx context.Context, tmpl template.Template) (map[capability.Type]string, error) {
	selected := make(map[capability.Type]string)
	for _, spec := range tmpl.Steps {
		if _, done := selected[spec.Capability]; done {
			continue
		}

		req := match.Requirement{
			Type:            spec.Capability,
			MinConfidence:   spec.MinConfidence,
			MaxResponseTime: int(spec.MaxResponseTime),
			Priority:        spec.Priority,
		}
		matches, err := o.matcher.FindBestAgents(ctx, []match.Requirement{req},
			match.StrategyBestPerformance, 1)
		if err != nil {
			return nil, fmt.Errorf("match agents for %s: %w", spec.Capability, err)
		}
		if len(matches) == 0 {
			if spec.Required {
				return nil, fmt.Errorf("%w: step %s needs %s",
					ErrNoAgentForStep, spec.ID, spec.Capability)
			}
			continue // optional step runs without an agent and gets skipped
		}
		selected[spec.Capability] = matches[0].Agent.ID
	}
	return selected, nil
}

// ExecuteWorkflow runs a pending workflow to a terminal state and returns the
// aggregated result. The conditional flow routes between parallel and
// sequential execution based on the intent's urgency.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) (workflow.AggregatedResult, error) {
	state, err := o.Workflow(workflowID)
	if err != nil {
		return workflow.AggregatedResult{}, err
	}
	if state.CurrentStatus() != workflow.StatusPending {
		return workflow.AggregatedResult{}, fmt.Errorf("workflow %s is %s: %w",
			workflowID, state.CurrentStatus(), ErrWorkflowNotRunnable)
	}

	tmpl, err := o.workflowTemplate(state)
	if err != nil {
		return workflow.AggregatedResult{}, err
	}

	if tmpl.Flow.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(tmpl.Flow.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	state.Start()
	o.events.BroadcastEvent(ctx, "workflow_started", map[string]any{
		"workflow_id": state.ID,
		"intent_type": state.IntentType,
	})

	if tmpl.Flow.Type == template.FlowConditional {
		o.routeConditional(state)
	}

	o.runSteps(ctx, state)
	o.finish(state, tmpl)

	agg := state.Aggregated()
	o.persist(ctx, state)

	event := "workflow_completed"
	if agg.Status != workflow.StatusCompleted {
		event = "workflow_failed"
	}
	o.events.BroadcastEvent(ctx, event, agg)
	o.logger.Info("workflow finished", "workflow_id", state.ID,
		"status", agg.Status, "risk_score", agg.RiskScore,
		"confidence", agg.OverallConfidence)
	return agg, nil
}

// workflowTemplate resolves the template a workflow was created from. The
// name is recorded in the workflow context at creation; snapshots restored
// without one fall back to intent-type lookup.
func (o *Orchestrator) workflowTemplate(state *workflow.State) (template.Template, error) {
	if name, ok := state.ContextValue("template").(string); ok && name != "" {
		return o.templates.Get(name)
	}
	return o.templates.ForIntent(state.IntentType)
}

// routeConditional picks the execution path for a conditional flow: urgent
// intents keep the declared graph and fan out, the rest run sequentially.
func (o *Orchestrator) routeConditional(state *workflow.State) {
	urgency := floatValue(state.Input, "urgency")
	if urgency >= o.cfg.UrgencyThreshold {
		state.AddDecision("flow_routing", "parallel",
			fmt.Sprintf("Urgency %.2f meets threshold %.2f", urgency, o.cfg.UrgencyThreshold),
			urgency)
		return
	}
	state.ChainSteps()
	state.AddDecision("flow_routing", "sequential",
		fmt.Sprintf("Urgency %.2f below threshold %.2f", urgency, o.cfg.UrgencyThreshold),
		1.0-urgency)
}

// runSteps executes rounds of ready steps until every step is terminal or no
// progress is possible. Steps whose dependencies failed or were skipped are
// skipped; retried steps come back as ready in a later round.
func (o *Orchestrator) runSteps(ctx context.Context, state *workflow.State) {
	for state.CanContinue() {
		ready := state.ReadySteps()
		if len(ready) == 0 {
			if !o.skipUnreachable(state) {
				return
			}
			continue
		}

		if len(ready) > 1 {
			state.RecordParallelGroup()
		}

		tasks := make([]func(ctx context.Context) error, 0, len(ready))
		for _, stepID := range ready {
			stepID := stepID
			tasks = append(tasks, func(ctx context.Context) error {
				o.executeStep(ctx, state, stepID)
				return nil
			})
		}
		if err := o.pool.Run(ctx, tasks); err != nil {
			state.AddWarning("step batch aborted: " + err.Error())
			return
		}
	}
}

// skipUnreachable skips pending steps whose dependencies can never complete.
// Returns true when it made progress.
func (o *Orchestrator) skipUnreachable(state *workflow.State) bool {
	progressed := false
	for _, id := range state.PendingSteps() {
		step := state.Steps[id]
		if step.AgentID == "" {
			if state.SkipStep(id, "no agent available") {
				progressed = true
			}
			continue
		}
		for _, dep := range step.DependsOn {
			d, ok := state.Steps[dep]
			if !ok {
				continue
			}
			if d.Status == workflow.StepStatusFailed || d.Status == workflow.StepStatusSkipped {
				if state.SkipStep(id, "dependency "+dep+" did not complete") {
					progressed = true
				}
				break
			}
		}
	}
	return progressed
}

// executeStep runs one step against its agent through the circuit breaker.
// Failures inside the retry budget reset the step to pending; the caller's
// round loop picks it up again.
func (o *Orchestrator) executeStep(ctx context.Context, state *workflow.State, stepID string) {
	step, ok := state.Steps[stepID]
	if !ok {
		return
	}
	if step.AgentID == "" {
		state.SkipStep(stepID, "no agent available")
		return
	}
	if !state.StartStep(stepID) {
		return
	}

	res, err := o.registry.Agent(step.AgentID)
	if err != nil {
		state.FailStep(stepID, "agent "+step.AgentID+" is no longer registered", false)
		return
	}

	stepCtx := ctx
	if o.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, o.cfg.StepTimeout)
		defer cancel()
	}

	payload := o.stepPayload(state, stepID)
	started := o.now()

	var output map[string]any
	execErr := o.breakers.For(step.AgentID).Execute(func() error {
		exec, err := o.resolver.ExecutorFor(res)
		if err != nil {
			return err
		}
		output, err = exec.ExecuteCapability(stepCtx, step.Capability, payload)
		return err
	})
	elapsed := o.now().Sub(started).Milliseconds()

	if execErr != nil {
		retryable := !errors.Is(execErr, agentexec.ErrUnsupportedCapability)
		retried := state.FailStep(stepID, execErr.Error(), retryable)
		o.logger.Warn("step execution failed", "workflow_id", state.ID,
			"step_id", stepID, "agent_id", step.AgentID,
			"error", execErr, "retrying", retried)
		o.events.BroadcastEvent(ctx, "step_failed", map[string]any{
			"workflow_id": state.ID,
			"step_id":     stepID,
			"agent_id":    step.AgentID,
			"error":       execErr.Error(),
			"retrying":    retried,
		})
		return
	}

	confidence, ok := lookupFloat(output, "confidence")
	if !ok {
		confidence = defaultStepConfidence
	}
	result := workflow.Result{
		AgentID:         step.AgentID,
		Capability:      step.Capability,
		Status:          workflow.StepStatusCompleted,
		Payload:         output,
		ExecutionTimeMS: elapsed,
		Confidence:      confidence,
		Timestamp:       o.now().UTC(),
	}
	if risk, ok := lookupFloat(output, "risk_score"); ok {
		result.RiskScore = &risk
	}

	state.CompleteStep(stepID, result)
	o.events.BroadcastEvent(ctx, "step_completed", map[string]any{
		"workflow_id": state.ID,
		"step_id":     stepID,
		"agent_id":    step.AgentID,
		"capability":  step.Capability,
		"confidence":  result.Confidence,
	})
}

// stepPayload assembles the document sent to the agent: the intent input
// plus workflow identity. KYC agents additionally expect the identity
// fields collected under verification_data.
func (o *Orchestrator) stepPayload(state *workflow.State, stepID string) map[string]any {
	payload := make(map[string]any, len(state.Input)+5)
	for k, v := range state.Input {
		payload[k] = v
	}
	payload["workflow_id"] = state.ID
	payload["intent_id"] = state.IntentID
	payload["intent_type"] = state.IntentType
	payload["step_id"] = stepID

	if step, ok := state.Steps[stepID]; ok && step.Capability == capability.KYCVerification {
		payload["verification_data"] = kycVerificationData(state.Input)
	}
	return payload
}

// kycVerificationData extracts the identity fields KYC agents match
// against, dropping empty values. full_name maps to the agent's name field.
func kycVerificationData(input map[string]any) map[string]any {
	data := make(map[string]any, 3)
	if v, ok := input["given_name"].(string); ok && v != "" {
		data["given_name"] = v
	}
	if v, ok := input["family_name"].(string); ok && v != "" {
		data["family_name"] = v
	}
	if v, ok := input["full_name"].(string); ok && v != "" {
		data["name"] = v
	}
	return data
}

// finish derives the risk score, evaluates the template's decision points,
// and settles the workflow's terminal status against its success criteria.
func (o *Orchestrator) finish(state *workflow.State, tmpl template.Template) {
	if !state.CanContinue() {
		return // cancelled mid-flight
	}

	state.SetRiskScore(aggregateRiskScore(state))
	o.evaluateDecisions(state, tmpl)

	completed, _ := state.StepCounts()
	if reason, ok := o.successCriteriaMet(state, tmpl, completed); !ok {
		state.Fail(reason)
		return
	}

	state.Complete(map[string]any{
		"agents_completed": completed,
		"risk_score":       state.RiskScore,
	})
}

// successCriteriaMet checks the template's completion requirements. Returns
// the failure reason when they are not met.
func (o *Orchestrator) successCriteriaMet(state *workflow.State, tmpl template.Template, completed int) (string, bool) {
	for _, spec := range tmpl.Steps {
		if !spec.Required {
			continue
		}
		step, ok := state.Steps[spec.ID]
		if !ok || step.Status != workflow.StepStatusCompleted {
			return "required step " + spec.ID + " did not complete", false
		}
	}

	if completed < tmpl.Success.MinAgentsCompleted {
		return fmt.Sprintf("only %d of %d required agents completed",
			completed, tmpl.Success.MinAgentsCompleted), false
	}

	for _, cap := range tmpl.Success.RequiredCapabilities {
		found := false
		for _, r := range state.Results {
			if r.Capability == cap {
				found = true
				break
			}
		}
		if !found {
			return "required capability " + string(cap) + " produced no result", false
		}
	}
	return "", true
}

// evaluateDecisions records the template's threshold decisions against the
// aggregated risk and confidence.
func (o *Orchestrator) evaluateDecisions(state *workflow.State, tmpl template.Template) {
	for _, d := range tmpl.Decisions {
		switch d.Type {
		case "risk_threshold":
			if state.RiskScore > d.Threshold {
				state.AddDecision(d.ID, "above_threshold",
					fmt.Sprintf("Risk score %.2f exceeds threshold %.2f", state.RiskScore, d.Threshold),
					state.OverallConfidence())
			} else {
				state.AddDecision(d.ID, "below_threshold",
					fmt.Sprintf("Risk score %.2f within threshold %.2f", state.RiskScore, d.Threshold),
					state.OverallConfidence())
			}
		case "confidence_threshold":
			confidence := state.OverallConfidence()
			if confidence > d.Threshold {
				state.AddDecision(d.ID, "sufficient_confidence",
					fmt.Sprintf("Confidence %.2f exceeds threshold %.2f", confidence, d.Threshold),
					confidence)
			} else {
				state.AddDecision(d.ID, "insufficient_confidence",
					fmt.Sprintf("Confidence %.2f below threshold %.2f", confidence, d.Threshold),
					confidence)
			}
		}
	}
}

// CancelWorkflow cancels a non-terminal workflow.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID string) error {
	state, err := o.Workflow(workflowID)
	if err != nil {
		return err
	}
	if state.Terminal() {
		return fmt.Errorf("workflow %s already %s: %w",
			workflowID, state.CurrentStatus(), ErrWorkflowNotRunnable)
	}

	state.Cancel()
	o.persist(ctx, state)
	o.events.BroadcastEvent(ctx, "workflow_cancelled", map[string]any{
		"workflow_id": workflowID,
	})
	o.logger.Info("cancelled workflow", "workflow_id", workflowID)
	return nil
}

// Workflow returns the workflow state by ID.
func (o *Orchestrator) Workflow(workflowID string) (*workflow.State, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, ok := o.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return state, nil
}

// WorkflowResult returns the aggregated result for a workflow.
func (o *Orchestrator) WorkflowResult(workflowID string) (workflow.AggregatedResult, error) {
	state, err := o.Workflow(workflowID)
	if err != nil {
		return workflow.AggregatedResult{}, err
	}
	return state.Aggregated(), nil
}

// ListWorkflows returns workflow summaries in creation order, optionally
// filtered by status.
func (o *Orchestrator) ListWorkflows(status workflow.Status) []WorkflowSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []WorkflowSummary
	for _, id := range o.order {
		state := o.workflows[id]
		if status != "" && state.CurrentStatus() != status {
			continue
		}
		completed, failed := state.StepCounts()
		out = append(out, WorkflowSummary{
			ID:             state.ID,
			IntentID:       state.IntentID,
			IntentType:     state.IntentType,
			Status:         state.CurrentStatus(),
			StepsTotal:     len(state.Order),
			StepsCompleted: completed,
			StepsFailed:    failed,
			RiskScore:      state.RiskScore,
			CreatedAt:      state.CreatedAt,
		})
	}
	return out
}

// ActiveCount returns how many workflows are not yet terminal.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	count := 0
	for _, state := range o.workflows {
		if !state.Terminal() {
			count++
		}
	}
	return count
}

// RestoreWorkflow loads a persisted snapshot back into the in-memory set,
// typically at startup. Already-loaded workflows are left alone.
func (o *Orchestrator) RestoreWorkflow(ctx context.Context, workflowID string) (*workflow.State, error) {
	if o.store == nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.workflows[workflowID]; ok {
		return state, nil
	}

	snap, err := o.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	state := workflow.Restore(*snap)
	o.workflows[workflowID] = state
	o.order = append(o.order, workflowID)
	return state, nil
}

// persist saves the workflow snapshot when a store is configured.
func (o *Orchestrator) persist(ctx context.Context, state *workflow.State) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, state.Snapshot()); err != nil {
		o.logger.Error("persist workflow snapshot failed",
			"workflow_id", state.ID, "error", err)
	}
}

// aggregateRiskScore derives the workflow risk score. Only fraud_detection
// intents carry one, and only fraud_detection results feed it: auxiliary
// capabilities report risk_score fields of their own that must not drive
// the transaction decision.
func aggregateRiskScore(state *workflow.State) float64 {
	if state.IntentType != "fraud_detection" {
		return 0
	}
	max := 0.0
	for _, r := range state.Results {
		if r.Capability != capability.FraudDetection {
			continue
		}
		if r.RiskScore != nil && *r.RiskScore > max {
			max = *r.RiskScore
		}
	}
	return max
}

// floatValue reads a numeric key from a payload, defaulting to 0.
func floatValue(m map[string]any, key string) float64 {
	v, _ := lookupFloat(m, key)
	return v
}

// lookupFloat reads a numeric key from a payload. JSON decoding and handler
// code produce float64 values, but int is tolerated.
func lookupFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
