package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/docsift/docsift/internal/model"
)

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API (or any
// compatible endpoint reachable through BaseURL).
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	timeout   time.Duration
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
func NewOpenAIEmbedder(cfg model.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	embModel := openai.EmbeddingModel(cfg.Model)
	if cfg.Model == "" {
		embModel = openai.SmallEmbedding3
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     embModel,
		dimension: cfg.Dimension,
		timeout:   timeout,
	}, nil
}

// Name returns the backend name.
func (e *OpenAIEmbedder) Name() string { return "openai" }

// Dimension returns the configured vector length.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Embed converts one text into a vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends the whole batch in one API call. A backend failure
// aborts the batch; the caller decides whether to retry with backoff.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctxWithTimeout, openai.EmbeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs",
			ErrUnavailable, len(resp.Data), len(texts))
	}

	// The API documents response order matching input order; Index makes
	// that explicit.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: openai returned out-of-range index %d", ErrUnavailable, d.Index)
		}
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("openai returned %d-dimensional embedding, expected %d",
				len(d.Embedding), e.dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
