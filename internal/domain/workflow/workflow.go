// Package workflow defines the per-instance workflow state machine: steps,
// statuses, agent results, decisions, and aggregation.
package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Terminal reports whether the workflow is in a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of an individual step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step is in a final state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

// DefaultMaxRetries bounds step retries when a step does not set its own limit.
const DefaultMaxRetries = 3

// Result is the outcome of one agent capability execution. Immutable once
// created. Confidence and RiskScore are typed so aggregation never guesses
// at payload shapes; the payload keeps the opaque remainder.
type Result struct {
	AgentID         string          `json:"agent_id"`
	Capability      capability.Type `json:"capability_type"`
	Status          StepStatus      `json:"status"`
	Payload         map[string]any  `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
	Confidence      float64         `json:"confidence"`
	RiskScore       *float64        `json:"risk_score,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Step represents a single unit of work in a workflow.
type Step struct {
	ID          string          `json:"step_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	AgentID     string          `json:"agent_id,omitempty"`
	Capability  capability.Type `json:"capability_type"`
	Status      StepStatus      `json:"status"`
	DependsOn   []string        `json:"dependencies,omitempty"`
	Result      *Result         `json:"result,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
}

// Decision is an audit record of a routing or threshold decision made while
// the workflow ran.
type Decision struct {
	Timestamp  time.Time `json:"timestamp"`
	Point      string    `json:"decision_point"`
	Choice     string    `json:"decision"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidence"`
}

// Metrics tracks execution counters for one workflow instance.
type Metrics struct {
	TotalExecutionMS int64 `json:"total_execution_time"`
	AgentCalls       int   `json:"agent_call_count"`
	ParallelGroups   int   `json:"parallel_executions"`
	Retries          int   `json:"retry_count"`
}

// State is the mutable state machine for one workflow instance. All
// transitions go through its methods; parallel step completions may arrive
// from multiple goroutines, so every method takes the internal lock.
type State struct {
	mu sync.Mutex

	ID         string
	IntentID   string
	IntentType string

	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time

	Steps       map[string]*Step
	Order       []string
	CurrentStep string

	Context map[string]any
	Input   map[string]any
	Output  map[string]any

	SelectedAgents map[capability.Type]string
	Results        map[string]Result // keyed by agent ID
	StepResults    map[string]Result // keyed by step ID

	Decisions []Decision
	RiskScore float64

	Errors   []string
	Warnings []string
	Metrics  Metrics

	now func() time.Time // injectable clock for tests
}

// NewState creates a pending workflow instance.
func NewState(id, intentID, intentType string) *State {
	s := &State{
		ID:             id,
		IntentID:       intentID,
		IntentType:     intentType,
		Status:         StatusPending,
		Steps:          make(map[string]*Step),
		Context:        make(map[string]any),
		Input:          make(map[string]any),
		Output:         make(map[string]any),
		SelectedAgents: make(map[capability.Type]string),
		Results:        make(map[string]Result),
		StepResults:    make(map[string]Result),
		now:            time.Now,
	}
	s.CreatedAt = s.now().UTC()
	s.UpdatedAt = s.CreatedAt
	return s
}

// SetClock replaces the state's clock. Intended for tests.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddStep appends a step to the workflow. Steps with MaxRetries <= 0 get
// DefaultMaxRetries; an unbounded retry loop is never representable.
func (s *State) AddStep(step *Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step.MaxRetries <= 0 {
		step.MaxRetries = DefaultMaxRetries
	}
	if step.Status == "" {
		step.Status = StepStatusPending
	}

	if _, exists := s.Steps[step.ID]; !exists {
		s.Order = append(s.Order, step.ID)
	}
	s.Steps[step.ID] = step
	s.touch()
}

// ChainSteps rewrites dependencies so steps execute strictly in the given
// order: each step depends on its predecessor. Used by the conditional flow
// when routing chooses the sequential path.
func (s *State) ChainSteps() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.Order {
		step := s.Steps[id]
		if i == 0 {
			step.DependsOn = nil
			continue
		}
		step.DependsOn = []string{s.Order[i-1]}
	}
	s.touch()
}

// Start marks the workflow as running.
func (s *State) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusRunning
	t := s.now().UTC()
	s.StartedAt = &t
	s.touch()
}

// Complete marks the workflow as completed and merges the final result into
// the output data.
func (s *State) Complete(finalResult map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusCompleted
	t := s.now().UTC()
	s.CompletedAt = &t
	for k, v := range finalResult {
		s.Output[k] = v
	}
	if s.StartedAt != nil {
		s.Metrics.TotalExecutionMS = t.Sub(*s.StartedAt).Milliseconds()
	}
	s.touch()
}

// Fail marks the workflow as failed and records the error.
func (s *State) Fail(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusFailed
	t := s.now().UTC()
	s.CompletedAt = &t
	s.Errors = append(s.Errors, "workflow failed: "+errMsg)
	if s.StartedAt != nil {
		s.Metrics.TotalExecutionMS = t.Sub(*s.StartedAt).Milliseconds()
	}
	s.touch()
}

// Cancel marks the workflow as cancelled. Best-effort and non-preemptive:
// in-flight agent calls are not interrupted, their late results are simply
// never applied because the workflow is terminal.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = StatusCancelled
	t := s.now().UTC()
	s.CompletedAt = &t
	s.touch()
}

// StartStep transitions a pending step to running. Returns false when the
// step is unknown or not pending, or when any dependency is not completed.
func (s *State) StartStep(stepID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.Steps[stepID]
	if !ok || step.Status != StepStatusPending {
		return false
	}
	for _, dep := range step.DependsOn {
		if d, ok := s.Steps[dep]; ok && d.Status != StepStatusCompleted {
			return false
		}
	}

	step.Status = StepStatusRunning
	t := s.now().UTC()
	step.StartedAt = &t
	s.CurrentStep = stepID
	s.touch()
	return true
}

// CompleteStep transitions a running step to completed and records its
// result keyed by both agent ID and step ID.
func (s *State) CompleteStep(stepID string, result Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.Steps[stepID]
	if !ok || step.Status != StepStatusRunning {
		return false
	}

	step.Status = StepStatusCompleted
	t := s.now().UTC()
	step.CompletedAt = &t
	step.Result = &result

	s.Results[result.AgentID] = result
	s.StepResults[stepID] = result
	s.Metrics.AgentCalls++
	s.touch()
	return true
}

// FailStep records a step failure. Within the retry budget the step resets
// to pending (a retry, not terminal); past the budget it fails terminally
// and the error is appended to the workflow errors. Returns true when the
// failure scheduled a retry.
func (s *State) FailStep(stepID, errMsg string, shouldRetry bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.Steps[stepID]
	if !ok {
		return false
	}

	step.RetryCount++
	if shouldRetry && step.RetryCount <= step.MaxRetries {
		step.Status = StepStatusPending
		step.StartedAt = nil
		s.Metrics.Retries++
		s.Warnings = append(s.Warnings,
			fmt.Sprintf("retrying step %s (attempt %d)", stepID, step.RetryCount))
		s.touch()
		return true
	}

	step.Status = StepStatusFailed
	t := s.now().UTC()
	step.CompletedAt = &t
	s.Errors = append(s.Errors, fmt.Sprintf("step %s failed: %s", stepID, errMsg))
	s.touch()
	return false
}

// SkipStep marks a pending step as skipped, recording the reason as a warning.
func (s *State) SkipStep(stepID, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.Steps[stepID]
	if !ok || step.Status != StepStatusPending {
		return false
	}

	step.Status = StepStatusSkipped
	t := s.now().UTC()
	step.CompletedAt = &t
	s.Warnings = append(s.Warnings, fmt.Sprintf("skipped step %s: %s", stepID, reason))
	s.touch()
	return true
}

// UpdateContext sets a key in the workflow context.
func (s *State) UpdateContext(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Context[key] = value
	s.touch()
}

// ContextValue returns a context value, or nil when absent.
func (s *State) ContextValue(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Context[key]
}

// RecordParallelGroup counts a batch of steps dispatched concurrently.
func (s *State) RecordParallelGroup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Metrics.ParallelGroups++
	s.touch()
}

// SetRiskScore records the aggregated risk score.
func (s *State) SetRiskScore(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.RiskScore = score
	s.touch()
}

// AddDecision appends a decision record to the audit trail.
func (s *State) AddDecision(point, choice, reasoning string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Decisions = append(s.Decisions, Decision{
		Timestamp:  s.now().UTC(),
		Point:      point,
		Choice:     choice,
		Reasoning:  reasoning,
		Confidence: confidence,
	})
	s.touch()
}

// AddWarning appends a workflow-level warning.
func (s *State) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Warnings = append(s.Warnings, msg)
	s.touch()
}

// Terminal reports whether the workflow has finished.
func (s *State) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status.Terminal()
}

// CanContinue reports whether the workflow may keep executing steps.
func (s *State) CanContinue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status == StatusRunning || s.Status == StatusPaused
}

// CurrentStatus returns the workflow status.
func (s *State) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// touch must be called with s.mu held.
func (s *State) touch() {
	s.UpdatedAt = s.now().UTC()
}
