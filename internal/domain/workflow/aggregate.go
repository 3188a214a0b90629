package workflow

import (
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// Recommendation is the final risk-based action derived from a completed
// workflow.
type Recommendation struct {
	Action     string  `json:"action"`
	Priority   string  `json:"priority"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ResultSummary is the per-agent slice of an aggregated result.
type ResultSummary struct {
	Capability      capability.Type `json:"capability"`
	Confidence      float64         `json:"confidence"`
	Payload         map[string]any  `json:"result,omitempty"`
	ExecutionTimeMS int64           `json:"execution_time"`
}

// AggregatedResult is the caller-facing outcome of a workflow execution.
// It is always produced, including for failed workflows.
type AggregatedResult struct {
	WorkflowID        string                   `json:"workflow_id"`
	IntentID          string                   `json:"intent_id"`
	Status            Status                   `json:"status"`
	OverallConfidence float64                  `json:"overall_confidence"`
	RiskScore         float64                  `json:"risk_score"`
	ExecutionTimeMS   int64                    `json:"execution_time_ms"`
	StepsCompleted    int                      `json:"steps_completed"`
	StepsFailed       int                      `json:"steps_failed"`
	AgentResults      map[string]ResultSummary `json:"agent_results"`
	Decisions         []Decision               `json:"decisions"`
	Errors            []string                 `json:"errors,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
	Recommendation    Recommendation           `json:"final_recommendation"`
}

// OverallConfidence returns the arithmetic mean of all stored result
// confidences, or 0.0 when no results exist.
func (s *State) OverallConfidence() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overallConfidenceLocked()
}

// overallConfidenceLocked must be called with s.mu held.
func (s *State) overallConfidenceLocked() float64 {
	if len(s.Results) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, r := range s.Results {
		sum += r.Confidence
	}
	return sum / float64(len(s.Results))
}

// Aggregated collects results from all terminal steps and derives the final
// recommendation for the workflow's intent type.
func (s *State) Aggregated() AggregatedResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed, failed := 0, 0
	for _, step := range s.Steps {
		switch step.Status {
		case StepStatusCompleted:
			completed++
		case StepStatusFailed:
			failed++
		}
	}

	results := make(map[string]ResultSummary, len(s.Results))
	for agentID, r := range s.Results {
		results[agentID] = ResultSummary{
			Capability:      r.Capability,
			Confidence:      r.Confidence,
			Payload:         r.Payload,
			ExecutionTimeMS: r.ExecutionTimeMS,
		}
	}

	return AggregatedResult{
		WorkflowID:        s.ID,
		IntentID:          s.IntentID,
		Status:            s.Status,
		OverallConfidence: s.overallConfidenceLocked(),
		RiskScore:         s.RiskScore,
		ExecutionTimeMS:   s.Metrics.TotalExecutionMS,
		StepsCompleted:    completed,
		StepsFailed:       failed,
		AgentResults:      results,
		Decisions:         append([]Decision(nil), s.Decisions...),
		Errors:            append([]string(nil), s.Errors...),
		Warnings:          append([]string(nil), s.Warnings...),
		Recommendation:    s.recommendationLocked(),
	}
}

// recommendationLocked must be called with s.mu held.
func (s *State) recommendationLocked() Recommendation {
	switch s.IntentType {
	case "fraud_detection":
		return s.fraudRecommendationLocked()
	case "customer_verification":
		return s.verificationRecommendationLocked()
	default:
		return Recommendation{
			Action:     "review_results",
			Priority:   "medium",
			Confidence: s.overallConfidenceLocked(),
		}
	}
}

func (s *State) fraudRecommendationLocked() Recommendation {
	confidence := s.overallConfidenceLocked()
	switch {
	case s.RiskScore > 0.8:
		return Recommendation{
			Action:     "block_transaction",
			Priority:   "high",
			Reasoning:  "High fraud risk detected",
			Confidence: confidence,
		}
	case s.RiskScore > 0.6:
		return Recommendation{
			Action:     "manual_review",
			Priority:   "medium",
			Reasoning:  "Moderate fraud risk - requires review",
			Confidence: confidence,
		}
	default:
		return Recommendation{
			Action:     "allow_transaction",
			Priority:   "low",
			Reasoning:  "Low fraud risk",
			Confidence: confidence,
		}
	}
}

func (s *State) verificationRecommendationLocked() Recommendation {
	confidence := s.overallConfidenceLocked()
	switch {
	case confidence > 0.9:
		return Recommendation{
			Action:     "approve_verification",
			Priority:   "low",
			Reasoning:  "High confidence verification",
			Confidence: confidence,
		}
	case confidence > 0.7:
		return Recommendation{
			Action:     "request_additional_documents",
			Priority:   "medium",
			Reasoning:  "Moderate confidence - need more verification",
			Confidence: confidence,
		}
	default:
		return Recommendation{
			Action:     "reject_verification",
			Priority:   "high",
			Reasoning:  "Low confidence verification",
			Confidence: confidence,
		}
	}
}
