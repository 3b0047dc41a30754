// Package settings holds the runtime-tunable retrieval and chunking
// knobs in a single database row. Environment config provides the seed
// values; this row is what operators actually adjust.
package settings

import (
	"context"
	"fmt"
)

type Settings struct {
	ID             int     `json:"-"`
	MaxChunkSize   int     `json:"max_chunk_size"`
	ChunkOverlap   int     `json:"chunk_overlap"`
	TopKChunks     int     `json:"top_k_chunks"`
	SemanticWeight float64 `json:"semantic_weight"`
	RelevanceFloor float64 `json:"relevance_floor"`
	PDFCJKRatio    float64 `json:"pdf_cjk_ratio"`
}

func (s *Settings) Validate() error {
	if s.MaxChunkSize <= 0 {
		return fmt.Errorf("max_chunk_size must be positive, got %d", s.MaxChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.MaxChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, max_chunk_size), got %d", s.ChunkOverlap)
	}
	if s.TopKChunks <= 0 {
		return fmt.Errorf("top_k_chunks must be positive, got %d", s.TopKChunks)
	}
	if s.SemanticWeight < 0 || s.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be in [0,1], got %g", s.SemanticWeight)
	}
	if s.RelevanceFloor < 0 || s.RelevanceFloor > 1 {
		return fmt.Errorf("relevance_floor must be in [0,1], got %g", s.RelevanceFloor)
	}
	if s.PDFCJKRatio < 0 || s.PDFCJKRatio > 1 {
		return fmt.Errorf("pdf_cjk_ratio must be in [0,1], got %g", s.PDFCJKRatio)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}
