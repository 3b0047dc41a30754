// Package weaviate persists chunks and serves both retrieval paths
// against a single DocumentChunk class: nearVector for semantic search
// and BM25 over the prepared searchText field for lexical search.
package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"papyrus/internal/pipeline"
	"papyrus/internal/retrieval"
	"papyrus/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// InsertChunks writes the whole chunk set of one document in a single
// batch. Any per-object error fails the call; the pipeline treats that
// as a document-level failure and will re-clear on retry.
func (s *Store) InsertChunks(ctx context.Context, chunks []pipeline.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class: vector.ClassName,
			ID:    strfmt.UUID(c.ID),
			Properties: map[string]interface{}{
				"content":    c.Content,
				"searchText": c.SearchText,
				"documentId": c.DocumentID,
				"ownerId":    c.OwnerID,
				"docName":    c.DocName,
				"chunkIndex": c.ChunkIndex,
				"charCount":  c.CharCount,
				"wordCount":  c.WordCount,
			},
			Vector: c.Vector,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		return err
	}

	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

func (s *Store) VectorSearch(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]retrieval.Candidate, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(ownerFilter(ownerID)).
		WithLimit(limit).
		WithFields(candidateFields("distance")...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	return parseCandidates(res.Data, func(additional map[string]interface{}) float64 {
		// Weaviate reports cosine distance; similarity is its complement.
		if distance, ok := additional["distance"].(float64); ok {
			return 1 - distance
		}
		return 0
	}), nil
}

func (s *Store) TextSearch(ctx context.Context, ownerID, query string, limit int) ([]retrieval.Candidate, error) {
	if query == "" {
		return nil, nil
	}

	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("searchText")

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithBM25(bm25).
		WithWhere(ownerFilter(ownerID)).
		WithLimit(limit).
		WithFields(candidateFields("score")...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	return parseCandidates(res.Data, func(additional map[string]interface{}) float64 {
		// The BM25 score arrives as a string in _additional.
		if score, ok := additional["score"].(string); ok {
			var f float64
			fmt.Sscanf(score, "%f", &f)
			return f
		}
		if score, ok := additional["score"].(float64); ok {
			return score
		}
		return 0
	}), nil
}

// GetChunks returns a document's chunks ordered by chunk index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]pipeline.ChunkRecord, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "ownerId"},
		{Name: "docName"},
		{Name: "chunkIndex"},
		{Name: "charCount"},
		{Name: "wordCount"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueString(documentID)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithLimit(10000).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var chunks []pipeline.ChunkRecord
	for _, props := range rawObjects(res.Data) {
		chunk := pipeline.ChunkRecord{}
		if content, ok := props["content"].(string); ok {
			chunk.Content = content
		}
		if id, ok := props["documentId"].(string); ok {
			chunk.DocumentID = id
		}
		if owner, ok := props["ownerId"].(string); ok {
			chunk.OwnerID = owner
		}
		if name, ok := props["docName"].(string); ok {
			chunk.DocName = name
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			chunk.ChunkIndex = int(idx)
		}
		if n, ok := props["charCount"].(float64); ok {
			chunk.CharCount = int(n)
		}
		if n, ok := props["wordCount"].(float64); ok {
			chunk.WordCount = int(n)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				chunk.ID = id
			}
		}
		chunks = append(chunks, chunk)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// CountChunks returns the number of stored chunks for one owner, or for
// every owner when ownerID is empty.
func (s *Store) CountChunks(ctx context.Context, ownerID string) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if ownerID != "" {
		agg = agg.WithWhere(ownerFilter(ownerID))
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[vector.ClassName].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func ownerFilter(ownerID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"ownerId"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
}

func candidateFields(scoreField string) []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: scoreField}}},
	}
}

func parseCandidates(data map[string]models.JSONObject, score func(map[string]interface{}) float64) []retrieval.Candidate {
	var candidates []retrieval.Candidate
	for _, props := range rawObjects(data) {
		c := retrieval.Candidate{}
		if content, ok := props["content"].(string); ok {
			c.Content = content
		}
		if id, ok := props["documentId"].(string); ok {
			c.DocumentID = id
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			c.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				c.ChunkID = id
			}
			c.Score = score(additional)
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func rawObjects(data map[string]models.JSONObject) []map[string]interface{} {
	var out []map[string]interface{}
	if get, ok := data["Get"].(map[string]interface{}); ok {
		if objs, ok := get[vector.ClassName].([]interface{}); ok {
			for _, o := range objs {
				if props, ok := o.(map[string]interface{}); ok {
					out = append(out, props)
				}
			}
		}
	}
	return out
}
