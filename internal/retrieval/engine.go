// Package retrieval implements hybrid search over persisted chunks:
// cosine-similarity search and BM25 full-text search run in parallel,
// scores are min-max normalized, blended by a semantic weight and
// filtered by a relevance floor.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"papyrus/internal/embedding"
	"papyrus/internal/lexical"
	"papyrus/internal/middleware"
)

// Candidate is one ranked chunk as returned by the search store, with
// the store's raw score (cosine similarity or BM25 rank).
type Candidate struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkIndex int
	Score      float64
}

// Result is one retrieved passage with its component scores preserved
// for observability. It lives only for the duration of one search call.
type Result struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentName  string  `json:"document_name"`
	Content       string  `json:"content"`
	ChunkIndex    int     `json:"chunk_index"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	LexicalScore  float64 `json:"lexical_score"`
	RawSemantic   float64 `json:"raw_semantic_score"`
	RawLexical    float64 `json:"raw_lexical_score"`
	SearchType    string  `json:"search_type"`
}

type Params struct {
	OwnerID        string
	TopK           int
	SemanticWeight float64
	RelevanceFloor float64
}

func (p Params) validate() error {
	if p.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", p.TopK)
	}
	if p.SemanticWeight < 0 || p.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be in [0,1], got %g", p.SemanticWeight)
	}
	return nil
}

type SearchStore interface {
	VectorSearch(ctx context.Context, ownerID string, vector []float32, limit int) ([]Candidate, error)
	TextSearch(ctx context.Context, ownerID, query string, limit int) ([]Candidate, error)
}

// DocumentScope resolves which documents are searchable for an owner:
// only completed ones. The returned map is document id -> display name.
type DocumentScope interface {
	CompletedDocuments(ctx context.Context, ownerID string) (map[string]string, error)
}

type Engine struct {
	embedder embedding.Generator
	store    SearchStore
	docs     DocumentScope
	logger   *QueryLogger
}

func NewEngine(e embedding.Generator, s SearchStore, d DocumentScope, l *QueryLogger) *Engine {
	return &Engine{embedder: e, store: s, docs: d, logger: l}
}

// Search runs hybrid retrieval for one query. It is read-only: the only
// side effect is the embedding call for the query itself. If that call
// fails with a rate-limit signal, the engine degrades to lexical-only
// search instead of erroring; any other embedding failure propagates.
func (e *Engine) Search(ctx context.Context, query string, p Params) ([]Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	var final []Result
	var degraded bool

	defer func() {
		if e.logger != nil {
			e.logger.Log(QueryLogEntry{
				Query:         query,
				OwnerID:       p.OwnerID,
				NumResults:    len(final),
				Degraded:      degraded,
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			})
		}
	}()

	scope, err := e.docs.CompletedDocuments(ctx, p.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve document scope: %w", err)
	}
	if len(scope) == 0 {
		return nil, nil
	}

	prepared := lexical.Prepare(query)

	vectors, err := e.embedder.Embed(ctx, []string{query}, embedding.PurposeQuery)
	if err != nil {
		if errors.Is(err, embedding.ErrRateLimited) {
			degraded = true
			final, err = e.lexicalOnly(ctx, prepared, scope, p)
			return final, err
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors for one text", len(vectors))
	}

	// Fetch 2x topK from each side so the merged set has enough coverage.
	retrieveK := 2 * p.TopK

	var (
		wg       sync.WaitGroup
		semantic []Candidate
		lexicals []Candidate
		semErr   error
		lexErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semErr = e.store.VectorSearch(ctx, p.OwnerID, vectors[0], retrieveK)
	}()
	go func() {
		defer wg.Done()
		lexicals, lexErr = e.store.TextSearch(ctx, p.OwnerID, prepared, retrieveK)
	}()
	wg.Wait()

	if semErr != nil {
		return nil, fmt.Errorf("semantic search: %w", semErr)
	}
	if lexErr != nil {
		return nil, fmt.Errorf("lexical search: %w", lexErr)
	}

	semantic = inScope(semantic, scope)
	lexicals = inScope(lexicals, scope)

	merged := merge(semantic, lexicals, p.SemanticWeight)

	// Deterministic order: combined score descending, chunk id ascending
	// on ties so repeated queries return stable rankings.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})

	if len(merged) > p.TopK {
		merged = merged[:p.TopK]
	}

	for _, r := range merged {
		if r.Score < p.RelevanceFloor {
			continue
		}
		r.DocumentName = scope[r.DocumentID]
		final = append(final, r)
	}

	return final, nil
}

// lexicalOnly is the single graceful-degradation path: the query
// embedding was throttled, so the lexical ranking is returned directly,
// without normalization or blending.
func (e *Engine) lexicalOnly(ctx context.Context, prepared string, scope map[string]string, p Params) ([]Result, error) {
	candidates, err := e.store.TextSearch(ctx, p.OwnerID, prepared, p.TopK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	var results []Result
	for _, c := range inScope(candidates, scope) {
		results = append(results, Result{
			ChunkID:      c.ChunkID,
			DocumentID:   c.DocumentID,
			DocumentName: scope[c.DocumentID],
			Content:      c.Content,
			ChunkIndex:   c.ChunkIndex,
			Score:        c.Score,
			LexicalScore: c.Score,
			RawLexical:   c.Score,
			SearchType:   "lexical",
		})
	}
	return results, nil
}

func inScope(candidates []Candidate, scope map[string]string) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := scope[c.DocumentID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// normalizeScores min-max normalizes a candidate set to [0,1]. A uniform
// set maps every entry to 1.0: there is no ranking signal to preserve,
// and zeroing the whole set would discard the match entirely.
func normalizeScores(candidates []Candidate) map[string]float64 {
	if len(candidates) == 0 {
		return nil
	}

	minScore, maxScore := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	norm := make(map[string]float64, len(candidates))
	scoreRange := maxScore - minScore
	for _, c := range candidates {
		if scoreRange == 0 {
			norm[c.ChunkID] = 1.0
		} else {
			norm[c.ChunkID] = (c.Score - minScore) / scoreRange
		}
	}
	return norm
}

// merge unions both candidate sets, blending normalized scores with the
// semantic weight. A chunk missing from one side contributes 0 for that
// side.
func merge(semantic, lexicals []Candidate, semanticWeight float64) []Result {
	semNorm := normalizeScores(semantic)
	lexNorm := normalizeScores(lexicals)

	byID := make(map[string]Result)

	add := func(c Candidate, raw func(*Result) *float64) {
		r, ok := byID[c.ChunkID]
		if !ok {
			r = Result{
				ChunkID:    c.ChunkID,
				DocumentID: c.DocumentID,
				Content:    c.Content,
				ChunkIndex: c.ChunkIndex,
				SearchType: "hybrid",
			}
		}
		*raw(&r) = c.Score
		byID[c.ChunkID] = r
	}

	for _, c := range semantic {
		add(c, func(r *Result) *float64 { return &r.RawSemantic })
	}
	for _, c := range lexicals {
		add(c, func(r *Result) *float64 { return &r.RawLexical })
	}

	merged := make([]Result, 0, len(byID))
	for id, r := range byID {
		r.SemanticScore = semNorm[id]
		r.LexicalScore = lexNorm[id]
		r.Score = semanticWeight*r.SemanticScore + (1-semanticWeight)*r.LexicalScore
		merged = append(merged, r)
	}
	return merged
}
