package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/domain/match"
)

// memCache is a minimal in-memory cache for matcher tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	hits int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func newTestMatcher(t *testing.T) (*Matcher, *Registry) {
	t.Helper()
	r, _ := newTestRegistry(t)
	m := NewMatcher(r, nil, 5*time.Second, testLogger())
	return m, r
}

func registerFraudAgent(t *testing.T, r *Registry, id string, confidence float64, sla int, cost, successRate float64) {
	t.Helper()
	res := &agent.Resource{
		ID:   id,
		Name: "Agent " + id,
		Capabilities: []capability.Capability{{
			Type:            capability.FraudDetection,
			ConfidenceLevel: confidence,
			ResponseTimeSLA: sla,
			CostPerRequest:  cost,
			DataRequirements: []string{
				"customer_id",
			},
		}},
		Performance: map[string]float64{"success_rate": successRate},
	}
	if _, err := r.RegisterAgent(res); err != nil {
		t.Fatalf("RegisterAgent(%s): %v", id, err)
	}
}

func fraudRequirement() match.Requirement {
	return match.Requirement{
		Type:            capability.FraudDetection,
		MinConfidence:   0.7,
		MaxResponseTime: 5000,
		MaxCost:         0.10,
		Priority:        1,
	}
}

func TestMatcher_RanksByOverallScore(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "strong", 0.95, 1500, 0.02, 0.98)
	registerFraudAgent(t, r, "weak", 0.72, 4500, 0.09, 0.70)

	matches, err := m.FindBestAgents(context.Background(),
		[]match.Requirement{fraudRequirement()}, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Agent.ID != "strong" {
		t.Errorf("top match = %s, want strong", matches[0].Agent.ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %v then %v", matches[0].Score, matches[1].Score)
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "a", 0.85, 2000, 0.05, 0.90)
	registerFraudAgent(t, r, "b", 0.85, 2000, 0.05, 0.90)
	registerFraudAgent(t, r, "c", 0.85, 2000, 0.05, 0.90)

	reqs := []match.Requirement{fraudRequirement()}
	first, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 3)
		if err != nil {
			t.Fatalf("FindBestAgents run %d: %v", i, err)
		}
		for j := range first {
			if again[j].Agent.ID != first[j].Agent.ID {
				t.Fatalf("run %d order differs at %d: %s vs %s",
					i, j, again[j].Agent.ID, first[j].Agent.ID)
			}
		}
	}
	// equal scores break ties by agent ID
	if first[0].Agent.ID != "a" || first[1].Agent.ID != "b" || first[2].Agent.ID != "c" {
		t.Errorf("tie order = %s %s %s, want a b c",
			first[0].Agent.ID, first[1].Agent.ID, first[2].Agent.ID)
	}
}

func TestMatcher_PriorityAmplifiesScore(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "a", 0.9, 2000, 0.05, 0.95)

	base := fraudRequirement()
	urgent := fraudRequirement()
	urgent.Priority = 3

	lo, err := m.FindBestAgents(context.Background(), []match.Requirement{base}, match.StrategyBestPerformance, 1)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	hi, err := m.FindBestAgents(context.Background(), []match.Requirement{urgent}, match.StrategyBestPerformance, 1)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}

	want := lo[0].Score * 1.2
	if diff := hi[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("priority 3 score = %v, want %v (1.2x of %v)", hi[0].Score, want, lo[0].Score)
	}
}

func TestMatcher_CostBudgetExcludes(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "pricey", 0.95, 1500, 0.05, 0.98)
	registerFraudAgent(t, r, "cheap", 0.75, 3000, 0.005, 0.85)

	req := fraudRequirement()
	req.MaxCost = 0.01

	matches, err := m.FindBestAgents(context.Background(), []match.Requirement{req}, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if len(matches) != 1 || matches[0].Agent.ID != "cheap" {
		t.Fatalf("matches = %v, want only cheap", matchIDs(matches))
	}
}

func TestMatcher_ExcludedAgentsSkipped(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "a", 0.95, 1500, 0.02, 0.98)
	registerFraudAgent(t, r, "b", 0.80, 2500, 0.04, 0.90)

	req := fraudRequirement()
	req.ExcludedAgents = []string{"a"}

	matches, err := m.FindBestAgents(context.Background(), []match.Requirement{req}, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if len(matches) != 1 || matches[0].Agent.ID != "b" {
		t.Errorf("matches = %v, want only b", matchIDs(matches))
	}
}

func TestMatcher_PreferredAgentsRankHigher(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "a", 0.85, 2000, 0.05, 0.90)
	registerFraudAgent(t, r, "b", 0.85, 2000, 0.05, 0.90)

	req := fraudRequirement()
	req.PreferredAgents = []string{"b"}

	matches, err := m.FindBestAgents(context.Background(), []match.Requirement{req}, match.StrategyBestPerformance, 2)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if matches[0].Agent.ID != "b" {
		t.Errorf("top match = %s, want preferred agent b", matches[0].Agent.ID)
	}
	if matches[0].PreferenceScore != 1.0 {
		t.Errorf("preference score = %v, want 1.0", matches[0].PreferenceScore)
	}
	if matches[1].PreferenceScore != 0.3 {
		t.Errorf("non-preferred score = %v, want 0.3", matches[1].PreferenceScore)
	}
}

func TestMatcher_DedupeKeepsHighestPerAgent(t *testing.T) {
	m, r := newTestMatcher(t)

	multi := &agent.Resource{
		ID:   "multi",
		Name: "Multi",
		Capabilities: []capability.Capability{
			{Type: capability.FraudDetection, ConfidenceLevel: 0.95, ResponseTimeSLA: 1500, CostPerRequest: 0.02},
			{Type: capability.RiskScoring, ConfidenceLevel: 0.70, ResponseTimeSLA: 4000, CostPerRequest: 0.08},
		},
		Performance: map[string]float64{"success_rate": 0.95},
	}
	if _, err := r.RegisterAgent(multi); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	reqs := []match.Requirement{
		{Type: capability.RiskScoring, MinConfidence: 0.6, MaxResponseTime: 5000, Priority: 1},
		{Type: capability.FraudDetection, MinConfidence: 0.7, MaxResponseTime: 5000, Priority: 1},
	}
	matches, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 5)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1 after dedupe", len(matches))
	}
	if matches[0].Capability != capability.FraudDetection {
		t.Errorf("kept capability = %s, want the higher-scoring fraud_detection",
			matches[0].Capability)
	}
}

func TestMatcher_MaxAgentsTruncates(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "a", 0.95, 1500, 0.02, 0.98)
	registerFraudAgent(t, r, "b", 0.85, 2500, 0.04, 0.90)
	registerFraudAgent(t, r, "c", 0.75, 3500, 0.06, 0.80)

	matches, err := m.FindBestAgents(context.Background(),
		[]match.Requirement{fraudRequirement()}, match.StrategyBestPerformance, 2)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("matches = %d, want 2", len(matches))
	}
}

func TestMatcher_Strategies(t *testing.T) {
	m, r := newTestMatcher(t)
	// fast: best SLA, middling cost; frugal: cheapest, slow; sure: highest
	// confidence, priciest
	registerFraudAgent(t, r, "fast", 0.80, 800, 0.05, 0.92)
	registerFraudAgent(t, r, "frugal", 0.75, 4500, 0.001, 0.80)
	registerFraudAgent(t, r, "sure", 0.99, 3000, 0.09, 0.90)

	cases := []struct {
		strategy match.Strategy
		wantTop  string
	}{
		{match.StrategyFastestResponse, "fast"},
		{match.StrategyLowestCost, "frugal"},
	}
	for _, tc := range cases {
		matches, err := m.FindBestAgents(context.Background(),
			[]match.Requirement{fraudRequirement()}, tc.strategy, 3)
		if err != nil {
			t.Fatalf("%s: %v", tc.strategy, err)
		}
		if matches[0].Agent.ID != tc.wantTop {
			t.Errorf("%s top = %s, want %s", tc.strategy, matches[0].Agent.ID, tc.wantTop)
		}
	}
}

func TestConfidenceScore(t *testing.T) {
	cases := []struct {
		level, min, want float64
	}{
		{0.9, 0.7, 1.0},  // clamps once the minimum is met
		{0.05, 0, 0.5},   // floor of 0.1 when no minimum is set
		{0.5, 0.6, 0.0},  // below minimum scores zero
		{0.35, 0.5, 0.0}, // even close misses score zero
	}
	for _, tc := range cases {
		if got := confidenceScore(tc.level, tc.min); got != tc.want {
			t.Errorf("confidenceScore(%v, %v) = %v, want %v", tc.level, tc.min, got, tc.want)
		}
	}
}

func TestMatcher_HighestConfidenceTieKeepsScoreOrder(t *testing.T) {
	m, r := newTestMatcher(t)
	// both clear the confidence minimum, so the confidence scores tie and
	// the overall score decides
	registerFraudAgent(t, r, "slow", 0.99, 4500, 0.09, 0.75)
	registerFraudAgent(t, r, "solid", 0.85, 1500, 0.02, 0.97)

	matches, err := m.FindBestAgents(context.Background(),
		[]match.Requirement{fraudRequirement()}, match.StrategyHighestConfidence, 2)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if matches[0].ConfidenceScore != matches[1].ConfidenceScore {
		t.Fatalf("expected a confidence tie, got %v and %v",
			matches[0].ConfidenceScore, matches[1].ConfidenceScore)
	}
	if matches[0].Agent.ID != "solid" {
		t.Errorf("top = %s, want solid (higher overall score)", matches[0].Agent.ID)
	}
}

func TestMatcher_LoadBalancedPrefersIdleAgents(t *testing.T) {
	m, r := newTestMatcher(t)
	registerFraudAgent(t, r, "loaded", 0.95, 1500, 0.02, 0.98)
	registerFraudAgent(t, r, "idle", 0.80, 3000, 0.05, 0.85)

	if err := r.Heartbeat("loaded", map[string]float64{"current_load": 0.9}); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	matches, err := m.FindBestAgents(context.Background(),
		[]match.Requirement{fraudRequirement()}, match.StrategyLoadBalanced, 2)
	if err != nil {
		t.Fatalf("FindBestAgents: %v", err)
	}
	if matches[0].Agent.ID != "idle" {
		t.Errorf("top = %s, want idle agent first under load balancing", matches[0].Agent.ID)
	}
}

func TestMatcher_UnknownStrategy(t *testing.T) {
	m, _ := newTestMatcher(t)
	if _, err := m.FindBestAgents(context.Background(), nil, "psychic", 3); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestMatcher_CacheHitAndInvalidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	c := newMemCache()
	m := NewMatcher(r, c, 5*time.Second, testLogger())
	registerFraudAgent(t, r, "a", 0.9, 2000, 0.05, 0.95)

	reqs := []match.Requirement{fraudRequirement()}
	if _, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 3); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", c.sets)
	}

	second, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if c.hits == 0 {
		t.Error("second identical call did not hit the cache")
	}
	if len(second) != 1 || second[0].Agent.ID != "a" {
		t.Errorf("cached matches = %v, want [a]", matchIDs(second))
	}

	// any registry change starts a new cache epoch
	registerFraudAgent(t, r, "b", 0.95, 1500, 0.02, 0.98)
	third, err := m.FindBestAgents(context.Background(), reqs, match.StrategyBestPerformance, 3)
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if len(third) != 2 {
		t.Errorf("post-mutation matches = %d, want 2 (stale cache served)", len(third))
	}
}

func TestMatcher_Recommendations(t *testing.T) {
	m, _ := newTestMatcher(t)

	reqs := m.Recommendations("fraud_detection", nil)
	if len(reqs) != 2 {
		t.Fatalf("fraud_detection reqs = %d, want 2", len(reqs))
	}
	if reqs[0].Type != capability.FraudDetection || reqs[0].Priority != 3 {
		t.Errorf("first req = %s pri %d, want fraud_detection pri 3", reqs[0].Type, reqs[0].Priority)
	}

	reqs = m.Recommendations("fraud_detection", map[string]any{
		"phone_numbers": []any{"+447900000001"},
	})
	if len(reqs) != 3 {
		t.Fatalf("fraud_detection with phones reqs = %d, want 3", len(reqs))
	}
	if reqs[2].Type != capability.DeviceVerification {
		t.Errorf("third req = %s, want device_verification", reqs[2].Type)
	}

	reqs = m.Recommendations("customer_verification", nil)
	if len(reqs) != 1 || reqs[0].Type != capability.KYCVerification || reqs[0].MinConfidence != 0.85 {
		t.Errorf("customer_verification reqs = %+v", reqs)
	}

	reqs = m.Recommendations("sim_swap_detection", nil)
	if len(reqs) != 1 || reqs[0].Type != capability.SIMSwapDetection {
		t.Errorf("sim_swap_detection reqs = %+v", reqs)
	}

	if reqs = m.Recommendations("weather_report", nil); len(reqs) != 0 {
		t.Errorf("unknown intent reqs = %d, want 0", len(reqs))
	}
}

func TestMatcher_ValidateSelection(t *testing.T) {
	m, _ := newTestMatcher(t)

	report := m.ValidateSelection(nil)
	if report.Valid {
		t.Error("empty selection reported valid")
	}
	if len(report.Warnings) != 1 || report.Warnings[0] != "No agents found matching requirements" {
		t.Errorf("warnings = %v", report.Warnings)
	}

	matches := []match.Match{
		{Agent: &agent.Resource{ID: "a"}, Capability: capability.FraudDetection,
			ConfidenceScore: 0.9, CostScore: 0.8},
		{Agent: &agent.Resource{ID: "b"}, Capability: capability.RiskScoring,
			ConfidenceScore: 0.4, CostScore: 0.2},
	}
	report = m.ValidateSelection(matches)
	if !report.Valid {
		t.Error("selection reported invalid")
	}
	if len(report.Warnings) != 1 {
		t.Errorf("warnings = %v, want one low-confidence warning", report.Warnings)
	}
	if len(report.Suggestions) != 1 || report.Suggestions[0] != "Consider reviewing cost requirements" {
		t.Errorf("suggestions = %v", report.Suggestions)
	}
	if report.CoveredCapabilities != 2 {
		t.Errorf("covered capabilities = %d, want 2", report.CoveredCapabilities)
	}
}

func matchIDs(matches []match.Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Agent.ID
	}
	return ids
}
