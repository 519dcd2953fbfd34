package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docsift/docsift/internal/model"
)

// OllamaEmbedder produces embeddings through a local Ollama instance.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaEmbedError struct {
	Error string `json:"error"`
}

// NewOllamaEmbedder creates an Ollama-backed embedder.
func NewOllamaEmbedder(cfg model.EmbeddingConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second // Local models can be slow on first load
	}

	return &OllamaEmbedder{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name returns the backend name.
func (e *OllamaEmbedder) Name() string { return "ollama" }

// Dimension returns the configured vector length.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed converts one text into a vector via /api/embeddings.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := e.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaEmbedError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%w: ollama: %s", ErrUnavailable, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: ollama status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Embedding) != e.dimension {
		return nil, fmt.Errorf("ollama returned %d-dimensional embedding, expected %d",
			len(parsed.Embedding), e.dimension)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, f := range parsed.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// EmbedBatch embeds each text in turn; Ollama has no batch endpoint. Any
// failure aborts the whole batch.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return batchOneByOne(ctx, e, texts)
}
