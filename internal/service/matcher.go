package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/fraudgrid/fraudgrid/internal/domain"
	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
	"github.com/fraudgrid/fraudgrid/internal/domain/match"
	"github.com/fraudgrid/fraudgrid/internal/port/cache"
)

// Weights applied to the component scores when computing an overall match.
const (
	weightConfidence   = 0.30
	weightPerformance  = 0.25
	weightCost         = 0.20
	weightAvailability = 0.15
	weightPreference   = 0.10
)

// Matcher scores and ranks agents against capability requirements.
// Match results are cached per registry generation, so any registry change
// invalidates them implicitly.
type Matcher struct {
	registry *Registry
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewMatcher creates a matcher over the given registry. The cache is
// optional; a nil cache disables memoization.
func NewMatcher(registry *Registry, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Matcher {
	return &Matcher{
		registry: registry,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger.With("component", "matcher"),
	}
}

// cachedMatch is the cache representation of one match: the agent is stored
// by ID and re-resolved on read so cached entries never serve stale resources.
type cachedMatch struct {
	AgentID           string          `json:"agent_id"`
	Capability        capability.Type `json:"capability_type"`
	Score             float64         `json:"match_score"`
	ConfidenceScore   float64         `json:"confidence_score"`
	PerformanceScore  float64         `json:"performance_score"`
	CostScore         float64         `json:"cost_score"`
	AvailabilityScore float64         `json:"availability_score"`
	PreferenceScore   float64         `json:"preference_score"`
	Reasons           []string        `json:"reasons"`
}

// FindBestAgents returns up to maxAgents scored matches for the given
// requirements, ranked by the chosen strategy. Results are deterministic
// for identical registry state and inputs.
func (m *Matcher) FindBestAgents(ctx context.Context, reqs []match.Requirement, strategy match.Strategy, maxAgents int) ([]match.Match, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown matching strategy %q", domain.ErrValidation, strategy)
	}
	if maxAgents < 1 {
		maxAgents = 1
	}

	key := m.cacheKey(reqs, strategy, maxAgents)
	if hit, ok := m.fromCache(ctx, key); ok {
		return hit, nil
	}

	var all []match.Match
	for _, req := range reqs {
		all = append(all, m.matchesForRequirement(req)...)
	}

	unique := dedupeMatches(all)
	sortMatches(unique, strategy)

	if len(unique) > maxAgents {
		unique = unique[:maxAgents]
	}

	m.toCache(ctx, key, unique)
	m.logger.Debug("matched agents", "strategy", strategy,
		"requirements", len(reqs), "matches", len(unique))
	return unique, nil
}

// matchesForRequirement scores every eligible agent for one requirement.
func (m *Matcher) matchesForRequirement(req match.Requirement) []match.Match {
	candidates := m.registry.FindAgentsByCapability(req.Type, req.Filter())

	excluded := make(map[string]bool, len(req.ExcludedAgents))
	for _, id := range req.ExcludedAgents {
		excluded[id] = true
	}

	var out []match.Match
	for _, res := range candidates {
		if excluded[res.ID] {
			continue
		}
		cap, ok := res.Capability(req.Type)
		if !ok {
			continue
		}
		out = append(out, scoreAgent(res, cap, req))
	}
	return out
}

// scoreAgent computes the weighted multi-criteria score for one candidate.
func scoreAgent(res *agent.Resource, cap capability.Capability, req match.Requirement) match.Match {
	confidence := confidenceScore(cap.ConfidenceLevel, req.MinConfidence)
	performance := performanceScore(res, cap, req)
	cost := costScore(cap.CostPerRequest, req.MaxCost)
	availability := availabilityScore(res)
	preference := preferenceScore(res.ID, req.PreferredAgents)

	score := confidence*weightConfidence +
		performance*weightPerformance +
		cost*weightCost +
		availability*weightAvailability +
		preference*weightPreference

	// Priority amplifies the final score: priority 1 is neutral, each level
	// above adds 10%.
	priority := req.Priority
	if priority < 1 {
		priority = 1
	}
	score *= 1 + float64(priority-1)*0.1

	return match.Match{
		Agent:             res,
		Capability:        req.Type,
		Score:             score,
		ConfidenceScore:   confidence,
		PerformanceScore:  performance,
		CostScore:         cost,
		AvailabilityScore: availability,
		PreferenceScore:   preference,
		Reasons:           matchReasons(res, cap, confidence, performance, cost, availability),
	}
}

func confidenceScore(level, minRequired float64) float64 {
	if level < minRequired {
		return 0.0
	}
	floor := minRequired
	if floor < 0.1 {
		floor = 0.1
	}
	s := level / floor
	if s > 1.0 {
		return 1.0
	}
	return s
}

func performanceScore(res *agent.Resource, cap capability.Capability, req match.Requirement) float64 {
	score := 0.5

	if req.MaxResponseTime > 0 {
		if cap.ResponseTimeSLA <= req.MaxResponseTime {
			ratio := float64(cap.ResponseTimeSLA) / float64(req.MaxResponseTime)
			score += (1 - ratio) * 0.3
		} else {
			score -= 0.2
		}
	}

	score += (res.Metric("success_rate", 0.5) - 0.5) * 0.3

	if avg := res.Metric("avg_response_time", 0); avg > 0 && req.MaxResponseTime > 0 {
		if avg <= float64(req.MaxResponseTime) {
			score += 0.1
		}
	}

	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}

func costScore(cost, maxCost float64) float64 {
	if maxCost <= 0 {
		return 1.0 // cost is not a factor
	}
	if cost > maxCost {
		return 0.0 // over budget
	}
	if cost == 0 {
		return 1.0
	}
	s := 1.0 - cost/maxCost
	if s < 0 {
		return 0.0
	}
	return s
}

func availabilityScore(res *agent.Resource) float64 {
	var base float64
	switch res.Status {
	case agent.StatusAvailable:
		base = 1.0
	case agent.StatusBusy:
		base = 0.6
	case agent.StatusError:
		base = 0.1
	default: // offline, maintenance
		base = 0.0
	}

	switch load := res.Metric("current_load", 0); {
	case load > 0.8:
		base *= 0.7
	case load > 0.5:
		base *= 0.85
	}
	return base
}

func preferenceScore(agentID string, preferred []string) float64 {
	if len(preferred) == 0 {
		return 0.5 // neutral
	}
	for i, id := range preferred {
		if id == agentID {
			// earlier position in the preference list scores higher
			return 1.0 - float64(i)/float64(len(preferred))*0.5
		}
	}
	return 0.3 // slight penalty for non-preferred agents
}

func matchReasons(res *agent.Resource, cap capability.Capability, confidence, performance, cost, availability float64) []string {
	var reasons []string

	switch {
	case confidence > 0.8:
		reasons = append(reasons, fmt.Sprintf("High confidence level (%.2f)", cap.ConfidenceLevel))
	case confidence < 0.5:
		reasons = append(reasons, fmt.Sprintf("Low confidence level (%.2f)", cap.ConfidenceLevel))
	}

	switch {
	case performance > 0.8:
		reasons = append(reasons, "Excellent performance metrics")
	case performance < 0.5:
		reasons = append(reasons, "Below average performance")
	}

	switch {
	case cost > 0.8:
		reasons = append(reasons, "Cost-effective option")
	case cost == 0:
		reasons = append(reasons, "Exceeds cost budget")
	}

	switch {
	case availability == 1.0:
		reasons = append(reasons, "Fully available")
	case availability < 0.5:
		reasons = append(reasons, "Limited availability")
	}

	if res.Status == agent.StatusBusy {
		reasons = append(reasons, "Currently busy but can handle request")
	}
	if res.Metric("success_rate", 0) > 0.95 {
		reasons = append(reasons, "Very high success rate")
	}
	return reasons
}

// dedupeMatches keeps the highest-scoring match per agent, preserving first
// encounter order for equal scores.
func dedupeMatches(matches []match.Match) []match.Match {
	best := make(map[string]int, len(matches))
	var out []match.Match
	for _, m := range matches {
		id := m.Agent.ID
		if i, seen := best[id]; seen {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		best[id] = len(out)
		out = append(out, m)
	}
	return out
}

// sortMatches ranks by overall score with agent ID as the tiebreak, then
// stably re-sorts by the strategy criterion. Ties on the criterion keep the
// score order, so results are deterministic.
func sortMatches(matches []match.Match, strategy match.Strategy) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Agent.ID < matches[j].Agent.ID
	})

	var key func(m match.Match) float64
	switch strategy {
	case match.StrategyFastestResponse:
		key = func(m match.Match) float64 { return m.PerformanceScore }
	case match.StrategyLowestCost:
		key = func(m match.Match) float64 { return m.CostScore }
	case match.StrategyHighestConfidence:
		key = func(m match.Match) float64 { return m.ConfidenceScore }
	case match.StrategyLoadBalanced:
		// agents with headroom first, then the loaded ones, by score within
		// each band
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].AvailabilityScore > 0.8 && matches[j].AvailabilityScore <= 0.8
		})
		return
	default:
		return
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return key(matches[i]) > key(matches[j])
	})
}

// ValidateSelection reviews a set of matches and reports coverage problems.
func (m *Matcher) ValidateSelection(matches []match.Match) match.SelectionReport {
	report := match.SelectionReport{Valid: true}

	if len(matches) == 0 {
		report.Valid = false
		report.Warnings = append(report.Warnings, "No agents found matching requirements")
		return report
	}

	lowConfidence := 0
	highCost := 0
	covered := make(map[capability.Type]bool)
	for _, mm := range matches {
		if mm.ConfidenceScore < 0.6 {
			lowConfidence++
		}
		if mm.CostScore < 0.3 {
			highCost++
		}
		covered[mm.Capability] = true
	}

	if lowConfidence > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d agents have low confidence scores", lowConfidence))
	}
	if highCost > 0 {
		report.Suggestions = append(report.Suggestions, "Consider reviewing cost requirements")
	}
	report.CoveredCapabilities = len(covered)
	return report
}

// Recommendations derives capability requirements from an intent type and
// the entities extracted from it.
func (m *Matcher) Recommendations(intentType string, entities map[string]any) []match.Requirement {
	var reqs []match.Requirement

	switch intentType {
	case "fraud_detection":
		reqs = append(reqs,
			match.Requirement{
				Type:            capability.FraudDetection,
				MinConfidence:   0.8,
				MaxResponseTime: 5000,
				Priority:        3,
				RequiredData:    []string{"customer_id"},
			},
			match.Requirement{
				Type:            capability.RiskScoring,
				MinConfidence:   0.7,
				MaxResponseTime: 3000,
				Priority:        2,
			},
		)
		if hasEntity(entities, "phone_numbers") {
			reqs = append(reqs, match.Requirement{
				Type:            capability.DeviceVerification,
				MinConfidence:   0.6,
				MaxResponseTime: 4000,
				Priority:        2,
				RequiredData:    []string{"phone_number"},
			})
		}

	case "customer_verification":
		reqs = append(reqs, match.Requirement{
			Type:            capability.KYCVerification,
			MinConfidence:   0.85,
			MaxResponseTime: 8000,
			Priority:        3,
			RequiredData:    []string{"customer_id"},
		})

	case "sim_swap_detection":
		reqs = append(reqs, match.Requirement{
			Type:            capability.SIMSwapDetection,
			MinConfidence:   0.75,
			MaxResponseTime: 3000,
			Priority:        3,
			RequiredData:    []string{"phone_number"},
		})

	case "device_location":
		reqs = append(reqs, match.Requirement{
			Type:            capability.LocationTracking,
			MinConfidence:   0.7,
			MaxResponseTime: 4000,
			Priority:        2,
			RequiredData:    []string{"device_id"},
		})
	}

	return reqs
}

// hasEntity reports whether the entity is present and non-empty.
func hasEntity(entities map[string]any, key string) bool {
	v, ok := entities[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case string:
		return t != ""
	}
	return true
}

// cacheKey derives a key from the registry generation and inputs, so any
// registry mutation starts a new cache epoch.
func (m *Matcher) cacheKey(reqs []match.Requirement, strategy match.Strategy, maxAgents int) string {
	h := fnv.New64a()
	enc, _ := json.Marshal(reqs)
	_, _ = h.Write(enc)
	return fmt.Sprintf("match:g%d:%s:%d:%x", m.registry.Generation(), strategy, maxAgents, h.Sum64())
}

func (m *Matcher) fromCache(ctx context.Context, key string) ([]match.Match, bool) {
	if m.cache == nil {
		return nil, false
	}
	data, found, err := m.cache.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}

	var cached []cachedMatch
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}

	out := make([]match.Match, 0, len(cached))
	for _, c := range cached {
		res, err := m.registry.Agent(c.AgentID)
		if err != nil {
			return nil, false // agent vanished between generations
		}
		out = append(out, match.Match{
			Agent:             res,
			Capability:        c.Capability,
			Score:             c.Score,
			ConfidenceScore:   c.ConfidenceScore,
			PerformanceScore:  c.PerformanceScore,
			CostScore:         c.CostScore,
			AvailabilityScore: c.AvailabilityScore,
			PreferenceScore:   c.PreferenceScore,
			Reasons:           c.Reasons,
		})
	}
	return out, true
}

func (m *Matcher) toCache(ctx context.Context, key string, matches []match.Match) {
	if m.cache == nil {
		return
	}
	cached := make([]cachedMatch, 0, len(matches))
	for _, mm := range matches {
		cached = append(cached, cachedMatch{
			AgentID:           mm.Agent.ID,
			Capability:        mm.Capability,
			Score:             mm.Score,
			ConfidenceScore:   mm.ConfidenceScore,
			PerformanceScore:  mm.PerformanceScore,
			CostScore:         mm.CostScore,
			AvailabilityScore: mm.AvailabilityScore,
			PreferenceScore:   mm.PreferenceScore,
			Reasons:           mm.Reasons,
		})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, data, m.cacheTTL); err != nil {
		m.logger.Debug("match cache write failed", "error", err)
	}
}
