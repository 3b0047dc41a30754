// Package worker consumes ingestion events off NSQ and hands them to
// the document pipeline.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"papyrus/internal/middleware"
	"papyrus/internal/pipeline"
)

// processTimeout bounds one document end to end, embedding included.
const processTimeout = 10 * time.Minute

type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) pipeline.Outcome
}

type IngestConsumer struct {
	processor DocumentProcessor
}

func NewIngestConsumer(p DocumentProcessor) *IngestConsumer {
	return &IngestConsumer{processor: p}
}

// HandleMessage always returns nil: a failed document ends in the
// failed state, which is terminal and operator-visible. Requeueing
// through NSQ would re-run a document whose row already says failed.
func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestDocumentPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.DocumentID == "" {
		slog.Error("poison pill: missing document_id")
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	processCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	outcome := h.processor.Process(processCtx, payload.DocumentID)
	if outcome.Err != nil {
		slog.ErrorContext(ctx, "document ingestion failed",
			"document_id", payload.DocumentID, "status", outcome.Status, "error", outcome.Err)
		return nil
	}

	slog.InfoContext(ctx, "document ingested",
		"document_id", outcome.DocumentID, "chunks", outcome.ChunkCount)
	return nil
}
