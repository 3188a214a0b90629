package http

import (
	"net/http"

	"github.com/fraudgrid/fraudgrid/internal/domain/match"
)

type matchRequest struct {
	Requirements []match.Requirement `json:"requirements"`
	Strategy     match.Strategy      `json:"strategy"`
	MaxAgents    int                 `json:"max_agents"`
}

type matchResponse struct {
	Matches    []match.Match         `json:"matches"`
	Validation match.SelectionReport `json:"validation"`
}

// MatchAgents handles POST /api/v1/match
func (h *Handlers) MatchAgents(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[matchRequest](w, r)
	if !ok {
		return
	}
	if len(req.Requirements) == 0 {
		writeError(w, http.StatusBadRequest, "requirements are required")
		return
	}
	if req.Strategy == "" {
		req.Strategy = match.StrategyBestPerformance
	}

	matches, err := h.Matcher.FindBestAgents(r.Context(), req.Requirements, req.Strategy, req.MaxAgents)
	if err != nil {
		writeDomainError(w, err, "no matches found")
		return
	}

	writeJSON(w, http.StatusOK, matchResponse{
		Matches:    matches,
		Validation: h.Matcher.ValidateSelection(matches),
	})
}

type recommendationsRequest struct {
	IntentType string         `json:"intent_type"`
	Entities   map[string]any `json:"entities"`
}

// MatchRecommendations handles POST /api/v1/match/recommendations
func (h *Handlers) MatchRecommendations(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[recommendationsRequest](w, r)
	if !ok {
		return
	}
	if req.IntentType == "" {
		writeError(w, http.StatusBadRequest, "intent_type is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"intent_type":  req.IntentType,
		"requirements": h.Matcher.Recommendations(req.IntentType, req.Entities),
	})
}
