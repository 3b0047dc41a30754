package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"papyrus/internal/embedding"
)

func TestClassify(t *testing.T) {
	t.Run("HTTP 429 maps to rate limited", func(t *testing.T) {
		err := classify(&googleapi.Error{Code: 429, Message: "quota exceeded"})
		assert.ErrorIs(t, err, embedding.ErrRateLimited)
	})

	t.Run("Wrapped 429 is still detected", func(t *testing.T) {
		inner := &googleapi.Error{Code: 429}
		err := classify(errors.Join(errors.New("call failed"), inner))
		assert.ErrorIs(t, err, embedding.ErrRateLimited)
	})

	t.Run("Other HTTP errors map to unavailable", func(t *testing.T) {
		err := classify(&googleapi.Error{Code: 500})
		assert.ErrorIs(t, err, embedding.ErrUnavailable)
		assert.NotErrorIs(t, err, embedding.ErrRateLimited)
	})

	t.Run("Generic errors map to unavailable", func(t *testing.T) {
		err := classify(errors.New("connection reset"))
		assert.ErrorIs(t, err, embedding.ErrUnavailable)
	})

	t.Run("Context cancellation passes through", func(t *testing.T) {
		assert.Equal(t, context.Canceled, classify(context.Canceled))
		assert.Equal(t, context.DeadlineExceeded, classify(context.DeadlineExceeded))
	})
}

func TestNewEmbedderDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("Batch size capped at provider limit", func(t *testing.T) {
		e, err := NewEmbedder(ctx, "test-key", Config{BatchSize: 500})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, maxProviderBatch, e.batchSize)
	})

	t.Run("Zero batch size falls back to provider limit", func(t *testing.T) {
		e, err := NewEmbedder(ctx, "test-key", Config{})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, maxProviderBatch, e.batchSize)
	})

	t.Run("Default model applied", func(t *testing.T) {
		e, err := NewEmbedder(ctx, "test-key", Config{})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, "gemini-embedding-001", e.model)
	})

	t.Run("Explicit config preserved", func(t *testing.T) {
		e, err := NewEmbedder(ctx, "test-key", Config{
			Model:      "custom-model",
			BatchSize:  10,
			Dimension:  768,
			BatchDelay: 250 * time.Millisecond,
		})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, "custom-model", e.model)
		assert.Equal(t, 10, e.batchSize)
		assert.Equal(t, 768, e.dimension)
		assert.Equal(t, 250*time.Millisecond, e.batchDelay)
	})
}

func TestEmbedEmptyInput(t *testing.T) {
	e, err := NewEmbedder(context.Background(), "test-key", Config{})
	require.NoError(t, err)
	defer e.Close()

	// No texts means no API call and no vectors.
	vectors, err := e.Embed(context.Background(), nil, embedding.PurposeDocument)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
