package embed

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the embedding backend is down or
// rate-limited. Callers retry with backoff or fail the enclosing
// ingestion/query unit; a partially embedded batch is never kept.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder maps text to a fixed-length vector. Implementations must be
// deterministic for a fixed model version and keep Dimension constant for
// the lifetime of the index they feed.
type Embedder interface {
	// Name identifies the backend (openai, ollama, hashing).
	Name() string

	// Dimension is the length of every vector this embedder produces.
	Dimension() int

	// Embed converts one text into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts in input order. It either returns one
	// vector per input or an error; partial output is never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// batchOneByOne implements EmbedBatch for backends without a native batch
// endpoint, aborting on the first failure.
func batchOneByOne(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}
