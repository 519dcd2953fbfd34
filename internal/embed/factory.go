package embed

import (
	"fmt"
	"strings"

	"github.com/docsift/docsift/internal/model"
)

// NewEmbedder creates an embedding backend based on configuration.
func NewEmbedder(cfg model.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIEmbedder(cfg)

	case "ollama":
		return NewOllamaEmbedder(cfg)

	case "hashing", "":
		return NewHashingEmbedder(cfg.Dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama, hashing)", cfg.Provider)
	}
}
