package http

import (
	"io"
	"net/http"
)

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.Templates.List()})
}

// GetTemplate handles GET /api/v1/templates/{name}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Templates.Get(urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// ExportTemplate handles GET /api/v1/templates/{name}/export
func (h *Handlers) ExportTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := h.Templates.ExportYAML(urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportTemplate handles POST /api/v1/templates/import
//
// The body is a YAML template document, not JSON.
func (h *Handlers) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	tmpl, err := h.Templates.ImportYAML(data)
	if err != nil {
		writeDomainError(w, err, "template not found")
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}
