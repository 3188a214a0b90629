// Package match defines the value types exchanged between callers and the
// capability matcher.
package match

import (
	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// Strategy selects how ranked matches are re-ordered before truncation.
type Strategy string

const (
	StrategyBestPerformance   Strategy = "best_performance"
	StrategyFastestResponse   Strategy = "fastest_response"
	StrategyLowestCost        Strategy = "lowest_cost"
	StrategyHighestConfidence Strategy = "highest_confidence"
	StrategyLoadBalanced      Strategy = "load_balanced"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBestPerformance, StrategyFastestResponse, StrategyLowestCost,
		StrategyHighestConfidence, StrategyLoadBalanced:
		return true
	}
	return false
}

// Requirement describes a capability a workflow needs an agent for.
// Transient: constructed per matching call, never persisted.
type Requirement struct {
	Type            capability.Type `json:"capability_type"`
	MinConfidence   float64         `json:"min_confidence"`
	MaxResponseTime int             `json:"max_response_time,omitempty"` // milliseconds
	MaxCost         float64         `json:"max_cost,omitempty"`          // USD
	RequiredData    []string        `json:"required_data,omitempty"`
	PreferredAgents []string        `json:"preferred_agents,omitempty"`
	ExcludedAgents  []string        `json:"excluded_agents,omitempty"`
	Priority        int             `json:"priority"` // >= 1; higher amplifies match scores
}

// Filter returns the registry-level constraints carried by the requirement.
func (r Requirement) Filter() capability.Filter {
	return capability.Filter{
		MinConfidence:   r.MinConfidence,
		MaxResponseTime: r.MaxResponseTime,
		MaxCost:         r.MaxCost,
		RequiredData:    r.RequiredData,
	}
}

// Match is a scored candidate agent for one capability requirement.
type Match struct {
	Agent             *agent.Resource `json:"agent"`
	Capability        capability.Type `json:"capability_type"`
	Score             float64         `json:"match_score"`
	ConfidenceScore   float64         `json:"confidence_score"`
	PerformanceScore  float64         `json:"performance_score"`
	CostScore         float64         `json:"cost_score"`
	AvailabilityScore float64         `json:"availability_score"`
	PreferenceScore   float64         `json:"preference_score"`
	Reasons           []string        `json:"reasons"`
}

// SelectionReport is the matcher's feedback on a set of selected agents.
type SelectionReport struct {
	Valid               bool     `json:"is_valid"`
	Warnings            []string `json:"warnings"`
	Suggestions         []string `json:"suggestions"`
	CoveredCapabilities int      `json:"covered_capabilities"`
}
