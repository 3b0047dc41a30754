package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papyrus/internal/embedding"
)

type fakeDocStore struct {
	doc         Document
	claimErr    error
	completeErr error

	completedID    string
	completedCount int
	failedID       string
	failedReason   string
}

func (f *fakeDocStore) BeginProcessing(ctx context.Context, documentID string) (Document, error) {
	if f.claimErr != nil {
		return Document{}, f.claimErr
	}
	return f.doc, nil
}

func (f *fakeDocStore) MarkCompleted(ctx context.Context, documentID string, chunkCount int) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completedID = documentID
	f.completedCount = chunkCount
	return nil
}

func (f *fakeDocStore) MarkFailed(ctx context.Context, documentID, reason string) error {
	f.failedID = documentID
	f.failedReason = reason
	return nil
}

type fakeChunkWriter struct {
	deleted  []string
	inserted [][]ChunkRecord

	deleteErr error
	insertErr error
}

func (f *fakeChunkWriter) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return f.deleteErr
}

func (f *fakeChunkWriter) InsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, chunks)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(path, fileType string) (string, error) {
	return f.text, f.err
}

type fakeChunker struct {
	chunks []string
}

func (f *fakeChunker) Chunk(text string) []string {
	return f.chunks
}

type fakePipelineEmbedder struct {
	err         error
	lastPurpose embedding.Purpose
	lastTexts   []string
}

func (f *fakePipelineEmbedder) Embed(ctx context.Context, texts []string, purpose embedding.Purpose) ([][]float32, error) {
	f.lastTexts = texts
	f.lastPurpose = purpose
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return vectors, nil
}

func testDoc() Document {
	return Document{
		ID:       "doc-1",
		OwnerID:  "default",
		Name:     "contract.pdf",
		FilePath: "/uploads/contract.pdf",
		FileType: "pdf",
	}
}

func TestProcessSuccess(t *testing.T) {
	store := &fakeDocStore{doc: testDoc()}
	writer := &fakeChunkWriter{}
	emb := &fakePipelineEmbedder{}
	p := New(store, writer, &fakeExtractor{text: "extracted body"}, &fakeChunker{chunks: []string{"第一條 勞工", "second chunk"}}, emb)

	outcome := p.Process(context.Background(), "doc-1")

	require.NoError(t, outcome.Err)
	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, 2, outcome.ChunkCount)
	assert.Equal(t, "doc-1", store.completedID)
	assert.Equal(t, 2, store.completedCount)
	assert.Equal(t, embedding.PurposeDocument, emb.lastPurpose)

	// Stale chunks cleared before the new set lands.
	assert.Equal(t, []string{"doc-1"}, writer.deleted)
	require.Len(t, writer.inserted, 1)

	records := writer.inserted[0]
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].ChunkIndex)
	assert.Equal(t, 1, records[1].ChunkIndex)
	assert.Equal(t, "doc-1", records[0].DocumentID)
	assert.Equal(t, "default", records[0].OwnerID)
	assert.Equal(t, "contract.pdf", records[0].DocName)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
	assert.Equal(t, "第一條 勞工", records[0].Content)
	assert.Equal(t, "第一條 勞工", records[0].SearchText)
	assert.Equal(t, 6, records[0].CharCount, "characters counted in runes")
	assert.Equal(t, 2, records[0].WordCount)
}

func TestProcessNotPending(t *testing.T) {
	store := &fakeDocStore{claimErr: ErrNotPending}
	p := New(store, &fakeChunkWriter{}, &fakeExtractor{}, &fakeChunker{}, &fakePipelineEmbedder{})

	outcome := p.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, outcome.Err, ErrNotPending)
	assert.Empty(t, store.failedID, "claim failure must not mark the document failed")
}

func TestProcessEmptyDocument(t *testing.T) {
	t.Run("Extraction yields whitespace", func(t *testing.T) {
		store := &fakeDocStore{doc: testDoc()}
		p := New(store, &fakeChunkWriter{}, &fakeExtractor{text: "   \n\n "}, &fakeChunker{}, &fakePipelineEmbedder{})

		outcome := p.Process(context.Background(), "doc-1")
		assert.Equal(t, StatusFailed, outcome.Status)
		assert.ErrorIs(t, outcome.Err, ErrEmptyDocument)
		assert.Equal(t, "doc-1", store.failedID)
		assert.Contains(t, store.failedReason, "no extractable text")
	})

	t.Run("Chunker yields nothing", func(t *testing.T) {
		store := &fakeDocStore{doc: testDoc()}
		p := New(store, &fakeChunkWriter{}, &fakeExtractor{text: "real text"}, &fakeChunker{chunks: nil}, &fakePipelineEmbedder{})

		outcome := p.Process(context.Background(), "doc-1")
		assert.Equal(t, StatusFailed, outcome.Status)
		assert.ErrorIs(t, outcome.Err, ErrEmptyDocument)
	})
}

func TestProcessEmbeddingFailureIsAllOrNothing(t *testing.T) {
	store := &fakeDocStore{doc: testDoc()}
	writer := &fakeChunkWriter{}
	emb := &fakePipelineEmbedder{err: fmt.Errorf("embed: %w", embedding.ErrRateLimited)}
	p := New(store, writer, &fakeExtractor{text: "body"}, &fakeChunker{chunks: []string{"a", "b", "c"}}, emb)

	outcome := p.Process(context.Background(), "doc-1")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "doc-1", store.failedID)
	assert.Empty(t, writer.deleted, "existing chunks untouched when embedding fails")
	assert.Empty(t, writer.inserted, "no partial chunk set persisted")
}

func TestProcessExtractFailure(t *testing.T) {
	store := &fakeDocStore{doc: testDoc()}
	p := New(store, &fakeChunkWriter{}, &fakeExtractor{err: errors.New("corrupt pdf")}, &fakeChunker{}, &fakePipelineEmbedder{})

	outcome := p.Process(context.Background(), "doc-1")
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, store.failedReason, "corrupt pdf")
}

func TestProcessInsertFailure(t *testing.T) {
	store := &fakeDocStore{doc: testDoc()}
	writer := &fakeChunkWriter{insertErr: errors.New("weaviate down")}
	p := New(store, writer, &fakeExtractor{text: "body"}, &fakeChunker{chunks: []string{"a"}}, &fakePipelineEmbedder{})

	outcome := p.Process(context.Background(), "doc-1")

	// Never stuck in processing: persistence failure still lands in failed.
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "doc-1", store.failedID)
	assert.Empty(t, store.completedID)
}

func TestProcessMarkCompletedFailure(t *testing.T) {
	store := &fakeDocStore{doc: testDoc(), completeErr: errors.New("db connection reset")}
	writer := &fakeChunkWriter{}
	p := New(store, writer, &fakeExtractor{text: "body"}, &fakeChunker{chunks: []string{"a"}}, &fakePipelineEmbedder{})

	outcome := p.Process(context.Background(), "doc-1")

	// Never stuck in processing: a failed completed-transition still
	// records the failure state.
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "doc-1", store.failedID)
	assert.Contains(t, store.failedReason, "db connection reset")
	assert.ErrorContains(t, outcome.Err, "mark completed")
	assert.Empty(t, store.completedID)
}

func TestProcessCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeDocStore{doc: testDoc()}
	writer := &fakeChunkWriter{}
	p := New(store, writer, &fakeExtractor{text: "body"}, &fakeChunker{chunks: []string{"a"}}, &fakePipelineEmbedder{})

	outcome := p.Process(ctx, "doc-1")
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Empty(t, writer.inserted)
}
