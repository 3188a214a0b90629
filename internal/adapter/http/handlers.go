package http

import (
	"net/http"

	"github.com/fraudgrid/fraudgrid/internal/domain/template"
	"github.com/fraudgrid/fraudgrid/internal/resilience"
	"github.com/fraudgrid/fraudgrid/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Registry     *service.Registry
	Matcher      *service.Matcher
	Orchestrator *service.Orchestrator
	Templates    *template.Manager
	Breakers     *resilience.Group
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"active_workflows": h.Orchestrator.ActiveCount(),
	})
}

// RegistryState handles GET /api/v1/registry/state
func (h *Handlers) RegistryState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.ExportState())
}

// RegistryHealth handles GET /api/v1/registry/health
func (h *Handlers) RegistryHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.CheckHealth())
}

// ListCapabilities handles GET /api/v1/capabilities
func (h *Handlers) ListCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": h.Registry.CapabilitySummary(),
	})
}

// BreakerStates handles GET /api/v1/breakers
func (h *Handlers) BreakerStates(w http.ResponseWriter, _ *http.Request) {
	states := h.Breakers.States()
	out := make(map[string]string, len(states))
	for id, s := range states {
		out[id] = string(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": out})
}
