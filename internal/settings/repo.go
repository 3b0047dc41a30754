package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, max_chunk_size, chunk_overlap, top_k_chunks, semantic_weight, relevance_floor, pdf_cjk_ratio FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.MaxChunkSize, &s.ChunkOverlap, &s.TopKChunks, &s.SemanticWeight, &s.RelevanceFloor, &s.PDFCJKRatio)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET max_chunk_size = $1, chunk_overlap = $2, top_k_chunks = $3, semantic_weight = $4, relevance_floor = $5, pdf_cjk_ratio = $6, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.MaxChunkSize, s.ChunkOverlap, s.TopKChunks, s.SemanticWeight, s.RelevanceFloor, s.PDFCJKRatio)
	return err
}
