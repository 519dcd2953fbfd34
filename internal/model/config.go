package model

import "time"

// Config is the complete runtime configuration, assembled from defaults,
// config file, environment, and CLI flags (in increasing priority).
type Config struct {
	Chunking    ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Index       IndexConfig       `yaml:"index" mapstructure:"index"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// ChunkingConfig controls the sliding-window chunk splitter.
type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"` // Window size
	Overlap   int `yaml:"overlap" mapstructure:"overlap"`       // Tokens shared between neighbors
	MinTokens int `yaml:"min_tokens" mapstructure:"min_tokens"` // Trailing fragments below this merge into the previous chunk
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, ollama, hashing
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"-" mapstructure:"-"` // From env only, never persisted
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Dimension         int     `yaml:"dimension" mapstructure:"dimension"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // Seconds per request
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"` // Backoff retries on backend failure
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory, sqlite
	Path    string `yaml:"path,omitempty" mapstructure:"path"`
}

// RetrievalConfig tunes evidence retrieval.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k" mapstructure:"top_k"`
	MinScore float64 `yaml:"min_score" mapstructure:"min_score"` // Hits below this are dropped before extraction
}

// ExtractionConfig tunes the generative extraction step.
type ExtractionConfig struct {
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"` // Re-prompts after invalid model output
	FieldConcurrency int `yaml:"field_concurrency" mapstructure:"field_concurrency"`
	Timeout          int `yaml:"timeout" mapstructure:"timeout"` // Seconds per model call
}

// LLMConfig selects and tunes the generative model backend.
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"-" mapstructure:"-"` // From env only, never persisted
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // Seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CacheConfig controls the embedding and extraction caches.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"` // Disk layer location; empty disables the disk layer
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ConcurrencyConfig bounds fan-out inside the pipelines.
type ConcurrencyConfig struct {
	EmbedWorkers  int `yaml:"embed_workers" mapstructure:"embed_workers"`   // Parallel chunk embeddings per document
	IngestWorkers int `yaml:"ingest_workers" mapstructure:"ingest_workers"` // Parallel documents in batch ingestion
}

// HTTPConfig applies to the HTTP document source.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in defaults. Chunk window and overlap
// follow the calibration the original proof of concept shipped with;
// retrieval and retry knobs are tunable, not contractual.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxTokens: 512,
			Overlap:   64,
			MinTokens: 32,
		},
		Embedding: EmbeddingConfig{
			Provider:          "hashing",
			Dimension:         256,
			Timeout:           30,
			RequestsPerSecond: 5,
			Burst:             5,
			MaxRetries:        3,
		},
		Index: IndexConfig{
			Backend: "memory",
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0.25,
		},
		Extraction: ExtractionConfig{
			MaxRetries:       2,
			FieldConcurrency: 4,
			Timeout:          60,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   60,
			MaxTokens: 1000,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			EmbedWorkers:  4,
			IngestWorkers: 2,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "docsift/0.1 (+https://github.com/docsift/docsift)",
			MaxBodyBytes: 2_000_000,
		},
		Output: OutputConfig{},
	}
}
