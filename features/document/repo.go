package document

import (
	"context"
	"database/sql"
	"fmt"

	"papyrus/internal/pipeline"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, ownerID, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE owner_id = $1 AND content_hash = $2 AND deleted_at IS NULL)`
	err := r.db.QueryRowContext(ctx, query, ownerID, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (owner_id, name, file_type, file_size, file_path, content_hash, status) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	return r.db.QueryRowContext(ctx, query, doc.OwnerID, doc.Name, doc.FileType, doc.FileSize, doc.FilePath, doc.ContentHash, doc.Status).Scan(&doc.ID)
}

func (r *PostgresRepo) Get(ctx context.Context, ownerID, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, owner_id, name, file_type, file_size, file_path, status, chunk_count, COALESCE(error, ''), created_at, updated_at FROM documents WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&doc.ID, &doc.OwnerID, &doc.Name, &doc.FileType, &doc.FileSize, &doc.FilePath,
		&doc.Status, &doc.ChunkCount, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context, ownerID string) ([]Document, error) {
	query := `SELECT id, owner_id, name, file_type, file_size, status, chunk_count, COALESCE(error, ''), created_at, updated_at FROM documents WHERE owner_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.FileType, &d.FileSize, &d.Status, &d.ChunkCount, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, ownerID, id string) error {
	query := `UPDATE documents SET deleted_at = NOW() WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) ResetPending(ctx context.Context, ownerID, id string) error {
	query := `UPDATE documents SET status = 'pending', chunk_count = 0, error = NULL, updated_at = NOW() WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, ownerID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM documents WHERE owner_id = $1 AND deleted_at IS NULL GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// BeginProcessing is the conditional pending -> processing transition:
// the WHERE clause on status makes the claim atomic, so two workers
// racing on the same document see exactly one success.
func (r *PostgresRepo) BeginProcessing(ctx context.Context, documentID string) (pipeline.Document, error) {
	query := `
		UPDATE documents
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
		RETURNING id, owner_id, name, file_path, file_type
	`
	var doc pipeline.Document
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.FilePath, &doc.FileType)
	if err == sql.ErrNoRows {
		return pipeline.Document{}, pipeline.ErrNotPending
	}
	if err != nil {
		return pipeline.Document{}, err
	}
	return doc, nil
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, documentID string, chunkCount int) error {
	query := `UPDATE documents SET status = 'completed', chunk_count = $1, error = NULL, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, chunkCount, documentID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, documentID, reason string) error {
	query := `UPDATE documents SET status = 'failed', chunk_count = 0, error = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, reason, documentID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) CompletedDocuments(ctx context.Context, ownerID string) (map[string]string, error) {
	query := `SELECT id, name FROM documents WHERE owner_id = $1 AND status = 'completed' AND deleted_at IS NULL`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		docs[id] = name
	}
	return docs, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if n > 1 {
		return fmt.Errorf("expected one row affected, got %d", n)
	}
	return nil
}
