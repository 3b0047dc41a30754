package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"papyrus/internal/middleware"
)

type DocumentRepo interface {
	CountByStatus(ctx context.Context, ownerID string) (map[string]int, error)
}

type VectorStore interface {
	CountChunks(ctx context.Context, ownerID string) (int, error)
}

type Handler struct {
	documentRepo DocumentRepo
	vectorStore  VectorStore
}

func NewHandler(d DocumentRepo, v VectorStore) *Handler {
	return &Handler{documentRepo: d, vectorStore: v}
}

type StatsResponse struct {
	Documents map[string]int `json:"documents"`
	Chunks    int            `json:"chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := middleware.Owner(r)

	counts, err := h.documentRepo.CountByStatus(ctx, owner)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	chunks, err := h.vectorStore.CountChunks(ctx, owner)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents: counts,
		Chunks:    chunks,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
