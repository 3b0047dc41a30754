package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"papyrus/internal/embedding"
)

// maxProviderBatch is the hard cap on texts per request.
const maxProviderBatch = 96

type Config struct {
	Model      string
	BatchSize  int
	Dimension  int
	BatchDelay time.Duration
}

// Embedder generates embeddings via the Gemini API, batching inputs and
// spacing batches to stay under the burst-rate ceiling. Retry/backoff for
// transient failures belongs to the underlying client; a failure surfacing
// here is terminal for the call.
type Embedder struct {
	client     *genai.Client
	model      string
	batchSize  int
	dimension  int
	batchDelay time.Duration
}

func NewEmbedder(ctx context.Context, apiKey string, cfg Config, opts ...option.ClientOption) (*Embedder, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > maxProviderBatch {
		batchSize = maxProviderBatch
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}

	return &Embedder{
		client:     client,
		model:      model,
		batchSize:  batchSize,
		dimension:  cfg.Dimension,
		batchDelay: cfg.BatchDelay,
	}, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

func (e *Embedder) Embed(ctx context.Context, texts []string, purpose embedding.Purpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.model)
	if purpose == embedding.PurposeQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	} else {
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	vectors := make([][]float32, 0, len(texts))
	batches := (len(texts) + e.batchSize - 1) / e.batchSize

	for i := 0; i < len(texts); i += e.batchSize {
		if i > 0 && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}

		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		slog.DebugContext(ctx, "embedding batch", "model", e.model, "batch", i/e.batchSize+1, "batches", batches, "size", len(batch))

		b := em.NewBatch()
		for _, t := range batch {
			b.AddContent(genai.Text(t))
		}

		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, classify(err)
		}
		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", embedding.ErrUnavailable, len(res.Embeddings), len(batch))
		}

		for _, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("%w: empty embedding in response", embedding.ErrUnavailable)
			}
			if e.dimension > 0 && len(emb.Values) != e.dimension {
				return nil, fmt.Errorf("%w: got %d dimensions, want %d", embedding.ErrUnavailable, len(emb.Values), e.dimension)
			}
			vectors = append(vectors, emb.Values)
		}
	}

	return vectors, nil
}

// classify maps provider errors onto the embedding contract: HTTP 429
// becomes ErrRateLimited, everything else ErrUnavailable. Context
// cancellation passes through untouched.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return fmt.Errorf("%w: %v", embedding.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
}
