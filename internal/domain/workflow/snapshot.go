package workflow

import (
	"time"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// StepSnapshot is the serializable form of one step.
type StepSnapshot struct {
	ID          string          `json:"step_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      StepStatus      `json:"status"`
	AgentID     string          `json:"agent_id,omitempty"`
	Capability  capability.Type `json:"capability_type"`
	DependsOn   []string        `json:"dependencies,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	Result      *Result         `json:"result,omitempty"`
}

// Snapshot is a serializable checkpoint of a workflow instance, used for
// status reads and for persisting terminal workflow state.
type Snapshot struct {
	ID                string                     `json:"workflow_id"`
	IntentID          string                     `json:"intent_id"`
	IntentType        string                     `json:"intent_type"`
	Status            Status                     `json:"status"`
	CreatedAt         time.Time                  `json:"created_at"`
	StartedAt         *time.Time                 `json:"started_at,omitempty"`
	CompletedAt       *time.Time                 `json:"completed_at,omitempty"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	CurrentStep       string                     `json:"current_step,omitempty"`
	Steps             map[string]StepSnapshot    `json:"steps"`
	Order             []string                   `json:"step_order"`
	Context           map[string]any             `json:"context,omitempty"`
	Input             map[string]any             `json:"input_data,omitempty"`
	Output            map[string]any             `json:"output_data,omitempty"`
	SelectedAgents    map[capability.Type]string `json:"selected_agents"`
	Results           map[string]Result          `json:"agent_results"`
	Decisions         []Decision                 `json:"decisions"`
	RiskScore         float64                    `json:"risk_score"`
	OverallConfidence float64                    `json:"overall_confidence"`
	Errors            []string                   `json:"errors,omitempty"`
	Warnings          []string                   `json:"warnings,omitempty"`
	Metrics           Metrics                    `json:"metrics"`
}

// Snapshot captures the current state under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make(map[string]StepSnapshot, len(s.Steps))
	for id, step := range s.Steps {
		steps[id] = StepSnapshot{
			ID:          step.ID,
			Name:        step.Name,
			Description: step.Description,
			Status:      step.Status,
			AgentID:     step.AgentID,
			Capability:  step.Capability,
			DependsOn:   append([]string(nil), step.DependsOn...),
			StartedAt:   step.StartedAt,
			CompletedAt: step.CompletedAt,
			RetryCount:  step.RetryCount,
			MaxRetries:  step.MaxRetries,
			Result:      step.Result,
		}
	}

	selected := make(map[capability.Type]string, len(s.SelectedAgents))
	for k, v := range s.SelectedAgents {
		selected[k] = v
	}
	results := make(map[string]Result, len(s.Results))
	for k, v := range s.Results {
		results[k] = v
	}

	return Snapshot{
		ID:                s.ID,
		IntentID:          s.IntentID,
		IntentType:        s.IntentType,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		UpdatedAt:         s.UpdatedAt,
		CurrentStep:       s.CurrentStep,
		Steps:             steps,
		Order:             append([]string(nil), s.Order...),
		Context:           copyMap(s.Context),
		Input:             copyMap(s.Input),
		Output:            copyMap(s.Output),
		SelectedAgents:    selected,
		Results:           results,
		Decisions:         append([]Decision(nil), s.Decisions...),
		RiskScore:         s.RiskScore,
		OverallConfidence: s.overallConfidenceLocked(),
		Errors:            append([]string(nil), s.Errors...),
		Warnings:          append([]string(nil), s.Warnings...),
		Metrics:           s.Metrics,
	}
}

// Restore rebuilds a State from a snapshot. The restored state carries the
// real clock; terminal snapshots restore as terminal states.
func Restore(snap Snapshot) *State {
	s := NewState(snap.ID, snap.IntentID, snap.IntentType)
	s.Status = snap.Status
	s.CreatedAt = snap.CreatedAt
	s.StartedAt = snap.StartedAt
	s.CompletedAt = snap.CompletedAt
	s.UpdatedAt = snap.UpdatedAt
	s.CurrentStep = snap.CurrentStep
	s.Order = append([]string(nil), snap.Order...)

	for id, ss := range snap.Steps {
		s.Steps[id] = &Step{
			ID:          ss.ID,
			Name:        ss.Name,
			Description: ss.Description,
			Status:      ss.Status,
			AgentID:     ss.AgentID,
			Capability:  ss.Capability,
			DependsOn:   append([]string(nil), ss.DependsOn...),
			StartedAt:   ss.StartedAt,
			CompletedAt: ss.CompletedAt,
			RetryCount:  ss.RetryCount,
			MaxRetries:  ss.MaxRetries,
			Result:      ss.Result,
		}
		if ss.Result != nil {
			s.StepResults[id] = *ss.Result
		}
	}

	s.Context = copyMap(snap.Context)
	s.Input = copyMap(snap.Input)
	s.Output = copyMap(snap.Output)
	for k, v := range snap.SelectedAgents {
		s.SelectedAgents[k] = v
	}
	for k, v := range snap.Results {
		s.Results[k] = v
	}
	s.Decisions = append([]Decision(nil), snap.Decisions...)
	s.RiskScore = snap.RiskScore
	s.Errors = append([]string(nil), snap.Errors...)
	s.Warnings = append([]string(nil), snap.Warnings...)
	s.Metrics = snap.Metrics
	return s
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
