// Package pipeline drives one document from uploaded file to searchable
// chunks: extract, chunk, embed, persist. Chunk persistence is
// all-or-nothing; a document is never left with a partial chunk set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"papyrus/internal/embedding"
	"papyrus/internal/lexical"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrNotPending means another worker already claimed the document, or
	// it no longer exists. Not retryable.
	ErrNotPending = errors.New("document is not pending")

	// ErrEmptyDocument marks extraction that produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Document is the metadata the pipeline needs to process one upload.
type Document struct {
	ID       string
	OwnerID  string
	Name     string
	FilePath string
	FileType string
}

// DocumentStore owns document lifecycle state. BeginProcessing must be a
// conditional pending -> processing transition that fails with
// ErrNotPending when the row is in any other state; that transition is
// the advisory lock keeping two workers off one document.
type DocumentStore interface {
	BeginProcessing(ctx context.Context, documentID string) (Document, error)
	MarkCompleted(ctx context.Context, documentID string, chunkCount int) error
	MarkFailed(ctx context.Context, documentID, reason string) error
}

// ChunkRecord is one persisted chunk with its embedding and the
// denormalized fields retrieval reads back.
type ChunkRecord struct {
	ID         string
	DocumentID string
	OwnerID    string
	DocName    string
	Content    string
	SearchText string
	ChunkIndex int
	Vector     []float32
	CharCount  int
	WordCount  int
}

type ChunkWriter interface {
	DeleteByDocument(ctx context.Context, documentID string) error
	InsertChunks(ctx context.Context, chunks []ChunkRecord) error
}

type Extractor interface {
	Extract(path, fileType string) (string, error)
}

type Chunker interface {
	Chunk(text string) []string
}

type Outcome struct {
	DocumentID string
	Status     string
	ChunkCount int
	Err        error
}

type Pipeline struct {
	store     DocumentStore
	chunks    ChunkWriter
	extractor Extractor
	chunker   Chunker
	embedder  embedding.Generator
}

func New(store DocumentStore, chunks ChunkWriter, extractor Extractor, chunker Chunker, embedder embedding.Generator) *Pipeline {
	return &Pipeline{
		store:     store,
		chunks:    chunks,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
	}
}

// Process runs the full ingestion for one document. Any failure after
// the document is claimed lands it in the failed state with a reason;
// Process never leaves a document stuck in processing.
func (p *Pipeline) Process(ctx context.Context, documentID string) Outcome {
	doc, err := p.store.BeginProcessing(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			slog.Warn("skipping document not in pending state", "document_id", documentID)
			return Outcome{DocumentID: documentID, Status: StatusPending, Err: err}
		}
		return Outcome{DocumentID: documentID, Status: StatusPending, Err: fmt.Errorf("claim document: %w", err)}
	}

	count, err := p.ingest(ctx, doc)
	if err != nil {
		slog.Error("document processing failed",
			"document_id", doc.ID, "document_name", doc.Name, "error", err)
		if markErr := p.store.MarkFailed(ctx, doc.ID, err.Error()); markErr != nil {
			slog.Error("failed to record failure state", "document_id", doc.ID, "error", markErr)
		}
		return Outcome{DocumentID: doc.ID, Status: StatusFailed, Err: err}
	}

	if err := p.store.MarkCompleted(ctx, doc.ID, count); err != nil {
		err = fmt.Errorf("mark completed: %w", err)
		slog.Error("failed to record completed state", "document_id", doc.ID, "error", err)
		if markErr := p.store.MarkFailed(ctx, doc.ID, err.Error()); markErr != nil {
			slog.Error("failed to record failure state", "document_id", doc.ID, "error", markErr)
		}
		return Outcome{DocumentID: doc.ID, Status: StatusFailed, Err: err}
	}

	slog.Info("document processed", "document_id", doc.ID, "document_name", doc.Name, "chunks", count)
	return Outcome{DocumentID: doc.ID, Status: StatusCompleted, ChunkCount: count}
}

func (p *Pipeline) ingest(ctx context.Context, doc Document) (int, error) {
	text, err := p.extractor.Extract(doc.FilePath, doc.FileType)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyDocument
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	passages := p.chunker.Chunk(text)
	if len(passages) == 0 {
		return 0, ErrEmptyDocument
	}

	// One embedding call for the whole document. If any batch inside it
	// fails, no chunk gets a vector and nothing is persisted.
	vectors, err := p.embedder.Embed(ctx, passages, embedding.PurposeDocument)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(passages) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d passages", len(vectors), len(passages))
	}

	records := make([]ChunkRecord, len(passages))
	for i, content := range passages {
		records[i] = ChunkRecord{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			DocName:    doc.Name,
			Content:    content,
			SearchText: lexical.Prepare(content),
			ChunkIndex: i,
			Vector:     vectors[i],
			CharCount:  utf8.RuneCountInString(content),
			WordCount:  len(strings.Fields(content)),
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Reprocessing replaces the chunk set wholesale: clear stale chunks
	// before the bulk insert so a document never mixes generations.
	if err := p.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("clear stale chunks: %w", err)
	}
	if err := p.chunks.InsertChunks(ctx, records); err != nil {
		return 0, fmt.Errorf("persist chunks: %w", err)
	}

	return len(records), nil
}
