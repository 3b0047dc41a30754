// Package document owns the upload lifecycle: a document is created
// pending, claimed by a worker, and ends completed or failed. Rows live
// in Postgres; chunk content lives in the vector store.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"papyrus/internal/config"
	"papyrus/internal/middleware"
	"papyrus/internal/pipeline"
)

// ErrDuplicate means the same file content was already uploaded by this
// owner and not deleted since.
var ErrDuplicate = errors.New("duplicate document")

type Document struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	FilePath    string `json:"-"`
	ContentHash string `json:"-"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, ownerID, hash string) (bool, error)
	Get(ctx context.Context, ownerID, id string) (*Document, error)
	List(ctx context.Context, ownerID string) ([]Document, error)
	SoftDelete(ctx context.Context, ownerID, id string) error
	ResetPending(ctx context.Context, ownerID, id string) error
	CountByStatus(ctx context.Context, ownerID string) (map[string]int, error)

	// Pipeline lifecycle transitions.
	BeginProcessing(ctx context.Context, documentID string) (pipeline.Document, error)
	MarkCompleted(ctx context.Context, documentID string, chunkCount int) error
	MarkFailed(ctx context.Context, documentID, reason string) error

	// CompletedDocuments feeds the retrieval scope filter.
	CompletedDocuments(ctx context.Context, ownerID string) (map[string]string, error)
}

type ChunkStore interface {
	GetChunks(ctx context.Context, documentID string) ([]pipeline.ChunkRecord, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo       Repository
	pub        EventPublisher
	chunkStore ChunkStore
}

func NewService(repo Repository, pub EventPublisher, chunkStore ChunkStore) *Service {
	return &Service{repo: repo, pub: pub, chunkStore: chunkStore}
}

// Upload registers a stored file as a pending document and queues its
// ingestion. The file is already on disk; the handler wrote it and
// computed its hash.
func (s *Service) Upload(ctx context.Context, doc *Document) (*Document, error) {
	exists, err := s.repo.ExistsByHash(ctx, doc.OwnerID, doc.ContentHash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	doc.Status = pipeline.StatusPending
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	s.publishIngest(ctx, doc.ID)
	return doc, nil
}

func (s *Service) publishIngest(ctx context.Context, documentID string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    documentID,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		// The row stays pending; a reprocess call can requeue it.
		slog.Error("failed to publish ingest event", "error", err, "document_id", documentID)
	} else {
		slog.Info("published ingest event", "document_id", documentID)
	}
}

type Detail struct {
	Document
	Chunks      []pipeline.ChunkRecord `json:"chunks"`
	TotalChunks int                    `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*Detail, error) {
	doc, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunkStore.GetChunks(ctx, id)
	if err != nil {
		slog.Warn("failed to fetch chunks", "error", err, "document_id", id)
		chunks = []pipeline.ChunkRecord{}
	}

	return &Detail{
		Document:    *doc,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]Document, error) {
	return s.repo.List(ctx, ownerID)
}

// Delete removes the chunks, the stored file, then the row. Order
// matters: a row without chunks is consistent, chunks without a row are
// orphans retrieval would still surface.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.chunkStore.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) { // #nosec G703 -- path is server-generated
			slog.Warn("failed to remove stored file", "error", err, "path", filepath.Clean(doc.FilePath))
		}
	}

	return s.repo.SoftDelete(ctx, ownerID, id)
}

// Reprocess resets a document to pending and requeues it. Leaving the
// completed state drops the document from the search scope until the
// pipeline finishes the new run; its old chunks stay in the vector
// store until then but are filtered out of results.
func (s *Service) Reprocess(ctx context.Context, ownerID, id string) error {
	if _, err := s.repo.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.ResetPending(ctx, ownerID, id); err != nil {
		return err
	}
	s.publishIngest(ctx, id)
	return nil
}
