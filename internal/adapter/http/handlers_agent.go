package http

import (
	"net/http"

	"github.com/fraudgrid/fraudgrid/internal/domain/agent"
	"github.com/fraudgrid/fraudgrid/internal/domain/capability"
)

const headerAgentToken = "X-Agent-Token"

type registerAgentRequest struct {
	AgentID      string                  `json:"agent_id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Capabilities []capability.Capability `json:"capabilities"`
	Endpoint     string                  `json:"endpoint_url"`
	Metadata     map[string]string       `json:"metadata"`
}

type registerAgentResponse struct {
	Agent agent.Snapshot `json:"agent"`
	Token string         `json:"token"`
}

// RegisterAgent handles POST /api/v1/agents
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerAgentRequest](w, r)
	if !ok {
		return
	}

	res := &agent.Resource{
		ID:           req.AgentID,
		Name:         req.Name,
		Description:  req.Description,
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
		Metadata:     req.Metadata,
	}
	token, err := h.Registry.RegisterAgent(res)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	writeJSON(w, http.StatusCreated, registerAgentResponse{
		Agent: res.Snapshot(),
		Token: token,
	})
}

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	status := agent.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown agent status")
		return
	}

	agents := h.Registry.ListAgents(status)
	out := make([]agent.Snapshot, 0, len(agents))
	for _, res := range agents {
		out = append(out, res.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	res, err := h.Registry.Agent(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot())
}

// UnregisterAgent handles DELETE /api/v1/agents/{id}
func (h *Handlers) UnregisterAgent(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Registry.UnregisterAgent(id); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	h.Breakers.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status agent.Status `json:"status"`
}

// UpdateAgentStatus handles PUT /api/v1/agents/{id}/status
func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateStatusRequest](w, r)
	if !ok {
		return
	}

	if err := h.Registry.UpdateAgentStatus(urlParam(r, "id"), req.Status); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": req.Status})
}

type heartbeatRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

// Heartbeat handles POST /api/v1/agents/{id}/heartbeat
//
// The caller authenticates with the token issued at registration, carried in
// the X-Agent-Token header.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !h.Registry.VerifyToken(id, r.Header.Get(headerAgentToken)) {
		writeError(w, http.StatusUnauthorized, "invalid agent token")
		return
	}

	req, ok := readJSON[heartbeatRequest](w, r)
	if !ok {
		return
	}

	if err := h.Registry.Heartbeat(id, req.Metrics); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// AgentPerformance handles GET /api/v1/agents/{id}/performance
func (h *Handlers) AgentPerformance(w http.ResponseWriter, r *http.Request) {
	report, err := h.Registry.PerformanceMetrics(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
