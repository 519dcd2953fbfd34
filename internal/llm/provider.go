package llm

import (
	"context"
	"errors"
)

// ErrTimeout signals that the generative model did not answer within the
// configured deadline. Recoverable: the caller retries within its budget,
// then degrades the affected field instead of failing the batch.
var ErrTimeout = errors.New("generative model timeout")

// Provider defines the interface for generative model backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs one prompt through the model and returns its raw text
	// output. The output is untrusted; callers validate it against their
	// own schema.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one model invocation
type GenerateRequest struct {
	// System sets the model's role and output contract
	System string

	// Prompt is the user-turn content (field description plus evidence)
	Prompt string

	// Model overrides the configured model for this call
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the model's raw output
type GenerateResponse struct {
	// Text is the unparsed model output
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds generative model provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, in seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Model:     "",
		Timeout:   60,
		MaxTokens: 1000,
	}
}
