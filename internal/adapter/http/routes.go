package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Post("/agents", h.RegisterAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Delete("/agents/{id}", h.UnregisterAgent)
		r.Put("/agents/{id}/status", h.UpdateAgentStatus)
		r.Post("/agents/{id}/heartbeat", h.Heartbeat)
		r.Get("/agents/{id}/performance", h.AgentPerformance)

		// Capabilities and registry diagnostics
		r.Get("/capabilities", h.ListCapabilities)
		r.Get("/registry/state", h.RegistryState)
		r.Get("/registry/health", h.RegistryHealth)
		r.Get("/breakers", h.BreakerStates)

		// Capability matching
		r.Post("/match", h.MatchAgents)
		r.Post("/match/recommendations", h.MatchRecommendations)

		// Workflows
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/execute", h.ExecuteWorkflow)
		r.Post("/workflows/{id}/cancel", h.CancelWorkflow)
		r.Get("/workflows/{id}/result", h.GetWorkflowResult)
		r.Post("/workflows/{id}/restore", h.RestoreWorkflow)

		// Workflow templates
		r.Get("/templates", h.ListTemplates)
		r.Get("/templates/{name}", h.GetTemplate)
		r.Get("/templates/{name}/export", h.ExportTemplate)
		r.Post("/templates/import", h.ImportTemplate)
	})
}
