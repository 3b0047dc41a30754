// Package search exposes hybrid retrieval over HTTP. Per-request
// overrides fall back to the stored settings row, so operators can tune
// ranking without redeploying and callers can still experiment.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"papyrus/internal/middleware"
	"papyrus/internal/retrieval"
	"papyrus/internal/settings"
)

type Searcher interface {
	Search(ctx context.Context, query string, p retrieval.Params) ([]retrieval.Result, error)
}

type SettingsService interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Handler struct {
	engine   Searcher
	settings SettingsService
}

func NewHandler(engine Searcher, settingsSvc SettingsService) *Handler {
	return &Handler{engine: engine, settings: settingsSvc}
}

type searchRequest struct {
	Query          string   `json:"query"`
	TopK           *int     `json:"top_k,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	RelevanceFloor *float64 `json:"relevance_floor,omitempty"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	set, err := h.settings.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load settings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load settings", http.StatusInternalServerError)
		return
	}

	params := retrieval.Params{
		OwnerID:        middleware.Owner(r),
		TopK:           set.TopKChunks,
		SemanticWeight: set.SemanticWeight,
		RelevanceFloor: set.RelevanceFloor,
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.SemanticWeight != nil {
		params.SemanticWeight = *req.SemanticWeight
	}
	if req.RelevanceFloor != nil {
		params.RelevanceFloor = *req.RelevanceFloor
	}

	results, err := h.engine.Search(ctx, req.Query, params)
	if err != nil {
		slog.ErrorContext(ctx, "search failed", "error", err, "query", req.Query)
		h.writeError(ctx, w, "INTERNAL_ERROR", "search failed", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []retrieval.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
