// Package embedding defines the contract with the external embedding
// backend. Adapters (internal/adapter/gemini) implement Generator; the
// pipeline and the retrieval engine depend only on this package.
package embedding

import (
	"context"
	"errors"
)

// Purpose tells the backend whether vectors will be indexed or used to
// query an index. It is otherwise opaque to callers.
type Purpose string

const (
	PurposeDocument Purpose = "document"
	PurposeQuery    Purpose = "query"
)

var (
	// ErrRateLimited marks a throttling response after the client's own
	// retries were exhausted. The retrieval engine treats it as a signal
	// to degrade to lexical-only search, not as a hard failure.
	ErrRateLimited = errors.New("embedding backend rate limited")

	// ErrUnavailable marks any other terminal backend failure.
	ErrUnavailable = errors.New("embedding backend unavailable")
)

type Generator interface {
	// Embed returns one vector per input text, in input order. An empty
	// input yields an empty result without a backend call.
	Embed(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error)
}
