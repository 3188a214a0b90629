package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fraudgrid/fraudgrid/internal/domain"
	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

// recentWindow is how many history entries feed the recent averages.
const recentWindow = 10

// historyEntry is one heartbeat's worth of performance samples.
type historyEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// HealthReport summarizes the liveness of every registered agent.
type HealthReport struct {
	TotalAgents     int                          `json:"total_agents"`
	HealthyAgents   int                          `json:"healthy_agents"`
	UnhealthyAgents int                          `json:"unhealthy_agents"`
	OfflineAgents   int                          `json:"offline_agents"`
	Agents          map[string]AgentHealthStatus `json:"agents"`
}

// AgentHealthStatus is one agent's row in the health report.
type AgentHealthStatus struct {
	Name            string `json:"name"`
	Status          string `json:"status"` // healthy | unhealthy | offline
	LastHeartbeat   string `json:"last_heartbeat"`
	CapabilityCount int    `json:"capabilities_count"`
}

// PerformanceReport aggregates an agent's current and recent performance.
type PerformanceReport struct {
	AgentID        string             `json:"agent_id"`
	CurrentMetrics map[string]float64 `json:"current_metrics"`
	RecentAverages map[string]float64 `json:"recent_averages"`
	HistoryEntries int                `json:"history_entries"`
	LastUpdated    string             `json:"last_updated"`
}

// RegistryState is the exported snapshot of the whole registry.
type RegistryState struct {
	Timestamp         string                    `json:"timestamp"`
	Agents            map[string]agent.Snapshot `json:"agents"`
	CapabilitySummary map[capability.Type]int   `json:"capability_summary"`
	HealthReport      HealthReport              `json:"health_report"`
}

// Registry manages agent resources: registration, liveness, capability
// lookup, and performance tracking. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	agents     map[string]*agent.Resource
	order      []string // registration order, drives deterministic iteration
	byCap      map[capability.Type]map[string]bool
	history    map[string][]historyEntry
	generation uint64 // bumped on any mutation that can change match results

	heartbeatTimeout time.Duration
	historyCap       int
	logger           *slog.Logger
	now              func() time.Time // injectable clock for tests
}

// NewRegistry creates an empty registry.
func NewRegistry(heartbeatTimeout time.Duration, historyCap int, logger *slog.Logger) *Registry {
	byCap := make(map[capability.Type]map[string]bool, len(capability.All()))
	for _, t := range capability.All() {
		byCap[t] = make(map[string]bool)
	}
	return &Registry{
		agents:           make(map[string]*agent.Resource),
		byCap:            byCap,
		history:          make(map[string][]historyEntry),
		heartbeatTimeout: heartbeatTimeout,
		historyCap:       historyCap,
		logger:           logger.With("component", "registry"),
		now:              time.Now,
	}
}

// SetClock replaces the registry clock. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Generation returns a counter that changes whenever registry mutations may
// invalidate previously computed matches. Used as a cache epoch.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// RegisterAgent adds an agent to the registry and issues its heartbeat token.
// Registering an existing ID replaces the previous registration. Returns the
// plaintext token; only its bcrypt hash is retained.
func (r *Registry) RegisterAgent(res *agent.Resource) (string, error) {
	if res.ID == "" {
		return "", fmt.Errorf("%w: agent_id is required", domain.ErrValidation)
	}
	if len(res.Capabilities) == 0 {
		return "", fmt.Errorf("%w: agent %s has no capabilities", domain.ErrValidation, res.ID)
	}
	for _, c := range res.Capabilities {
		if !c.Type.Valid() {
			return "", fmt.Errorf("%w: unknown capability %q", domain.ErrValidation, c.Type)
		}
	}

	token, hash, err := newToken()
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now
	res.LastHeartbeat = now
	res.TokenHash = hash
	if res.Status == "" {
		res.Status = agent.StatusAvailable
	}
	if res.Performance == nil {
		res.Performance = make(map[string]float64)
	}

	if _, exists := r.agents[res.ID]; exists {
		r.removeFromIndexLocked(res.ID)
	} else {
		r.order = append(r.order, res.ID)
	}

	r.agents[res.ID] = res
	for _, c := range res.Capabilities {
		r.byCap[c.Type][res.ID] = true
	}
	r.history[res.ID] = nil
	r.generation++

	r.logger.Info("registered agent", "agent_id", res.ID, "name", res.Name,
		"capabilities", len(res.Capabilities))
	return token, nil
}

// UnregisterAgent removes an agent and its history.
func (r *Registry) UnregisterAgent(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	r.removeFromIndexLocked(agentID)
	delete(r.agents, agentID)
	delete(r.history, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.generation++

	r.logger.Info("unregistered agent", "agent_id", agentID)
	return nil
}

// removeFromIndexLocked must be called with r.mu held.
func (r *Registry) removeFromIndexLocked(agentID string) {
	old := r.agents[agentID]
	for _, c := range old.Capabilities {
		delete(r.byCap[c.Type], agentID)
	}
}

// UpdateAgentStatus sets an agent's status.
func (r *Registry) UpdateAgentStatus(agentID string, status agent.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	res.Status = status
	res.UpdatedAt = r.now().UTC()
	r.generation++

	r.logger.Debug("updated agent status", "agent_id", agentID, "status", status)
	return nil
}

// Heartbeat records a liveness signal from an agent, optionally updating its
// performance metrics. An offline agent that heartbeats comes back available.
func (r *Registry) Heartbeat(agentID string, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.agents[agentID]
	if !ok {
		r.logger.Warn("heartbeat from unregistered agent", "agent_id", agentID)
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	now := r.now().UTC()
	res.LastHeartbeat = now

	if len(metrics) > 0 {
		for k, v := range metrics {
			res.Performance[k] = v
		}

		hist := append(r.history[agentID], historyEntry{Timestamp: now, Metrics: metrics})
		if len(hist) > r.historyCap {
			hist = hist[len(hist)-r.historyCap:]
		}
		r.history[agentID] = hist
	}

	if res.Status == agent.StatusOffline {
		res.Status = agent.StatusAvailable
	}
	r.generation++
	return nil
}

// VerifyToken checks a plaintext heartbeat token against the agent's stored hash.
func (r *Registry) VerifyToken(agentID, token string) bool {
	r.mu.RLock()
	res, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(res.TokenHash, []byte(token)) == nil
}

// Agent returns the agent with the given ID.
func (r *Registry) Agent(agentID string) (*agent.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	return res, nil
}

// ListAgents returns all agents in registration order, optionally filtered
// by status (empty status returns everything).
func (r *Registry) ListAgents(status agent.Status) []*agent.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*agent.Resource
	for _, id := range r.order {
		res := r.agents[id]
		if status != "" && res.Status != status {
			continue
		}
		out = append(out, res)
	}
	return out
}

// FindAgentsByCapability returns schedulable agents whose capability of the
// given type satisfies the filter, in registration order.
func (r *Registry) FindAgentsByCapability(t capability.Type, f capability.Filter) []*agent.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCap[t]
	var out []*agent.Resource
	for _, id := range r.order {
		if !ids[id] {
			continue
		}
		res := r.agents[id]
		if !res.Status.Schedulable() {
			continue
		}
		if c, ok := res.Capability(t); ok && f.Matches(c) {
			out = append(out, res)
		}
	}
	return out
}

// CapabilitySummary returns, per capability type, how many agents currently
// offering it are available.
func (r *Registry) CapabilitySummary() map[capability.Type]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilitySummaryLocked()
}

// capabilitySummaryLocked must be called with r.mu held.
func (r *Registry) capabilitySummaryLocked() map[capability.Type]int {
	summary := make(map[capability.Type]int, len(r.byCap))
	for t, ids := range r.byCap {
		count := 0
		for id := range ids {
			if r.agents[id].Status == agent.StatusAvailable {
				count++
			}
		}
		summary[t] = count
	}
	return summary
}

// CheckHealth classifies every agent by heartbeat age. Agents past the
// timeout are marked offline as a side effect.
func (r *Registry) CheckHealth() HealthReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkHealthLocked()
}

// checkHealthLocked must be called with r.mu held.
func (r *Registry) checkHealthLocked() HealthReport {
	now := r.now().UTC()
	threshold := now.Add(-r.heartbeatTimeout)

	report := HealthReport{
		TotalAgents: len(r.agents),
		Agents:      make(map[string]AgentHealthStatus, len(r.agents)),
	}

	changed := false
	for _, id := range r.order {
		res := r.agents[id]
		healthy := res.LastHeartbeat.After(threshold)

		var status string
		switch {
		case res.Status == agent.StatusOffline:
			report.OfflineAgents++
			status = "offline"
		case healthy:
			report.HealthyAgents++
			status = "healthy"
		default:
			report.UnhealthyAgents++
			status = "unhealthy"
			res.Status = agent.StatusOffline
			changed = true
			r.logger.Warn("agent missed heartbeat deadline", "agent_id", id,
				"last_heartbeat", res.LastHeartbeat)
		}

		report.Agents[id] = AgentHealthStatus{
			Name:            res.Name,
			Status:          status,
			LastHeartbeat:   res.LastHeartbeat.UTC().Format(time.RFC3339),
			CapabilityCount: len(res.Capabilities),
		}
	}
	if changed {
		r.generation++
	}
	return report
}

// PerformanceMetrics returns current metrics plus averages over the recent
// history window for an agent.
func (r *Registry) PerformanceMetrics(agentID string) (PerformanceReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.agents[agentID]
	if !ok {
		return PerformanceReport{}, fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}

	hist := r.history[agentID]
	recent := hist
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, entry := range recent {
		for k, v := range entry.Metrics {
			sums[k] += v
			counts[k]++
		}
	}

	averages := make(map[string]float64, len(sums))
	for k, sum := range sums {
		averages["avg_"+k] = sum / float64(counts[k])
	}

	current := make(map[string]float64, len(res.Performance))
	for k, v := range res.Performance {
		current[k] = v
	}

	return PerformanceReport{
		AgentID:        agentID,
		CurrentMetrics: current,
		RecentAverages: averages,
		HistoryEntries: len(hist),
		LastUpdated:    res.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// ExportState captures the whole registry for diagnostics: all agents,
// the capability summary, and a health report.
func (r *Registry) ExportState() RegistryState {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make(map[string]agent.Snapshot, len(r.agents))
	for id, res := range r.agents {
		agents[id] = res.Snapshot()
	}

	return RegistryState{
		Timestamp:         r.now().UTC().Format(time.RFC3339),
		Agents:            agents,
		CapabilitySummary: r.capabilitySummaryLocked(),
		HealthReport:      r.checkHealthLocked(),
	}
}

// newToken generates a random heartbeat token and its bcrypt hash.
func newToken() (string, []byte, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	token := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	return token, hash, nil
}
