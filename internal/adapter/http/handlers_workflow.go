package http

import (
	"net/http"

	"github.com/fraudgrid/fraudgrid/internal/domain/workflow"
)

type createWorkflowRequest struct {
	IntentID   string         `json:"intent_id"`
	IntentType string         `json:"intent_type"`
	Input      map[string]any `json:"input"`
	Template   string         `json:"template_name"` // optional, overrides intent-type lookup
	Execute    bool           `json:"execute"`       // run immediately after creation
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createWorkflowRequest](w, r)
	if !ok {
		return
	}
	if req.IntentType == "" {
		writeError(w, http.StatusBadRequest, "intent_type is required")
		return
	}

	state, err := h.Orchestrator.CreateWorkflow(r.Context(), req.IntentID, req.IntentType, req.Input, req.Template)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}

	if req.Execute {
		result, err := h.Orchestrator.ExecuteWorkflow(r.Context(), state.ID)
		if err != nil {
			writeDomainError(w, err, "workflow not found")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"workflow": state.Snapshot(),
			"result":   result,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"workflow": state.Snapshot()})
}

// ExecuteWorkflow handles POST /api/v1/workflows/{id}/execute
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orchestrator.ExecuteWorkflow(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelWorkflow handles POST /api/v1/workflows/{id}/cancel
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.Orchestrator.CancelWorkflow(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// GetWorkflow handles GET /api/v1/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	state, err := h.Orchestrator.Workflow(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, state.Snapshot())
}

// GetWorkflowResult handles GET /api/v1/workflows/{id}/result
func (h *Handlers) GetWorkflowResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orchestrator.WorkflowResult(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	status := workflow.Status(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": h.Orchestrator.ListWorkflows(status),
	})
}

// RestoreWorkflow handles POST /api/v1/workflows/{id}/restore
//
// Loads a persisted snapshot back into the orchestrator, typically after a
// restart.
func (h *Handlers) RestoreWorkflow(w http.ResponseWriter, r *http.Request) {
	state, err := h.Orchestrator.RestoreWorkflow(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, state.Snapshot())
}
