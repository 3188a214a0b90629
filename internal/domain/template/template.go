// Package template defines reusable workflow templates for fraud-analysis
// orchestration. Templates are workflow factories: declarative definitions
// that, when instantiated for an intent, produce the step graph the
// orchestrator executes.
package template

import (
	"errors"
	"fmt"

	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

var (
	ErrNameRequired      = errors.New("template name is required")
	ErrNoSteps           = errors.New("template must have at least one step")
	ErrStepMissingID     = errors.New("step id is required")
	ErrDuplicateStepID   = errors.New("duplicate step id")
	ErrStepMissingCap    = errors.New("step capability_type is required")
	ErrInvalidCapability = errors.New("unknown capability type")
	ErrInvalidFlowType   = errors.New("invalid flow type")
	ErrDAGCycle          = errors.New("step dependencies contain a cycle")
	ErrDAGInvalidRef     = errors.New("step dependency references unknown step")
)

// FlowType selects how a template's steps are dispatched.
type FlowType string

const (
	FlowParallel    FlowType = "parallel"
	FlowSequential  FlowType = "sequential"
	FlowConditional FlowType = "conditional"
)

// Valid reports whether the flow type is one of the known kinds.
func (f FlowType) Valid() bool {
	switch f {
	case FlowParallel, FlowSequential, FlowConditional:
		return true
	}
	return false
}

// Flow configures template-level execution behavior.
type Flow struct {
	Type      FlowType `json:"type" yaml:"type"`
	TimeoutMS int64    `json:"timeout_ms" yaml:"timeout_ms"`
}

// StepSpec defines one unit of work in a workflow template. Unlike a live
// workflow step it names a capability, not an agent; agent selection happens
// at instantiation time.
type StepSpec struct {
	ID              string          `json:"step_id" yaml:"step_id"`
	Name            string          `json:"name" yaml:"name"`
	Capability      capability.Type `json:"capability_type" yaml:"capability_type"`
	Required        bool            `json:"required" yaml:"required"`
	MinConfidence   float64         `json:"min_confidence" yaml:"min_confidence"`
	MaxResponseTime int64           `json:"max_response_time" yaml:"max_response_time"`
	Priority        int             `json:"priority" yaml:"priority"`
	DependsOn       []string        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// DecisionSpec declares a threshold decision point evaluated after the
// template's steps complete.
type DecisionSpec struct {
	ID        string  `json:"decision_id" yaml:"decision_id"`
	Type      string  `json:"type" yaml:"type"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// SuccessCriteria defines when a partially-failed workflow still counts as
// a success.
type SuccessCriteria struct {
	MinAgentsCompleted   int               `json:"min_agents_completed" yaml:"min_agents_completed"`
	RequiredCapabilities []capability.Type `json:"required_capabilities" yaml:"required_capabilities"`
}

// Template defines the structure, flow, and agent requirements of one
// workflow kind. Templates are either built in or loaded from YAML.
type Template struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	IntentTypes []string        `json:"intent_types" yaml:"intent_types"`
	Builtin     bool            `json:"builtin" yaml:"-"`
	Flow        Flow            `json:"flow" yaml:"flow"`
	Steps       []StepSpec      `json:"steps" yaml:"steps"`
	Decisions   []DecisionSpec  `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	Success     SuccessCriteria `json:"success_criteria" yaml:"success_criteria"`
}

// Validate checks the template for structural correctness.
func (t *Template) Validate() error {
	if t.Name == "" {
		return ErrNameRequired
	}
	if !t.Flow.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFlowType, t.Flow.Type)
	}
	if len(t.Steps) == 0 {
		return ErrNoSteps
	}

	index := make(map[string]int, len(t.Steps))
	for i, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: %w", i, ErrStepMissingID)
		}
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateStepID, s.ID)
		}
		index[s.ID] = i
		if s.Capability == "" {
			return fmt.Errorf("step %q: %w", s.ID, ErrStepMissingCap)
		}
		if !s.Capability.Valid() {
			return fmt.Errorf("step %q: %w: %q", s.ID, ErrInvalidCapability, s.Capability)
		}
	}

	return t.validateDAG(index)
}

// validateDAG checks that step dependencies form a valid DAG using Kahn's algorithm.
func (t *Template) validateDAG(index map[string]int) error {
	n := len(t.Steps)
	inDegree := make([]int, n)
	adj := make([][]int, n)

	for i, s := range t.Steps {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return fmt.Errorf("step %q depends on %q: %w", s.ID, dep, ErrDAGInvalidRef)
			}
			if j == i {
				return fmt.Errorf("step %q depends on itself: %w", s.ID, ErrDAGCycle)
			}
			adj[j] = append(adj[j], i)
			inDegree[i]++
		}
	}

	queue := make([]int, 0, n)
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, neighbor := range adj[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if visited != n {
		return ErrDAGCycle
	}
	return nil
}

// Requirements lists the distinct capability types the template's steps need,
// in declaration order.
func (t *Template) Requirements() []capability.Type {
	seen := make(map[capability.Type]bool, len(t.Steps))
	var out []capability.Type
	for _, s := range t.Steps {
		if !seen[s.Capability] {
			seen[s.Capability] = true
			out = append(out, s.Capability)
		}
	}
	return out
}

const defaultStepResponseTime = 3000

// EstimatedDuration returns a rough execution time estimate in milliseconds,
// derived from the flow type and per-step response budgets.
func (t *Template) EstimatedDuration() int64 {
	if len(t.Steps) == 0 {
		return 0
	}

	var maxTime, total int64
	for _, s := range t.Steps {
		rt := s.MaxResponseTime
		if rt <= 0 {
			rt = defaultStepResponseTime
		}
		total += rt
		if rt > maxTime {
			maxTime = rt
		}
	}

	n := int64(len(t.Steps))
	switch t.Flow.Type {
	case FlowParallel:
		return maxTime + 1000
	case FlowSequential:
		return total + n*500
	default:
		return (maxTime+total)/2 + n*250
	}
}

// Step returns the step spec with the given ID, or nil.
func (t *Template) Step(id string) *StepSpec {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}
