package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docsift/docsift/internal/cache"
	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/llm"
	"github.com/docsift/docsift/internal/model"
	"github.com/docsift/docsift/internal/retrieve"
	"github.com/docsift/docsift/internal/worker"
)

// Pipeline is the assembled service: ingestion on one side, field
// extraction on the other, sharing the vector index in between.
type Pipeline struct {
	cfg      *model.Config
	embedder embed.Embedder
	idx      index.Index
	ingestor *Ingestor
	querier  *Querier
	files    *FileSource
	http     *HTTPSource
}

// New assembles a pipeline from configuration: embedding backend (with
// optional caching layer), index backend, generative provider, retriever,
// orchestrator, and the document sources.
func New(cfg *model.Config) (*Pipeline, error) {
	embedder, err := embed.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Enabled && cfg.Cache.TTL > 0 {
		var c cache.Cache
		if cfg.Cache.Dir != "" {
			c = cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		} else {
			c = cache.NewMemoryCache(cfg.Cache.TTL, 10*time.Minute)
		}
		embedder = embed.NewCachingEmbedder(embedder, c, cfg.Cache.TTL)
	}

	idx, err := openIndex(cfg.Index, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		idx.Close()
		return nil, err
	}

	limiter := worker.NewLimiter(cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst)

	splitter := chunk.NewSplitter(cfg.Chunking)
	retriever := retrieve.NewRetriever(embedder, idx, cfg.Retrieval)
	orchestrator := extract.NewOrchestrator(provider, cfg.Extraction)

	querier := NewQuerier(retriever, orchestrator, cfg)
	ingestor := NewIngestor(splitter, embedder, idx, limiter, cfg, querier.InvalidateDocument)

	return &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		idx:      idx,
		ingestor: ingestor,
		querier:  querier,
		files:    NewFileSource(),
		http:     NewHTTPSource(cfg.HTTP, limiter),
	}, nil
}

// openIndex opens the configured index backend.
func openIndex(cfg model.IndexConfig, dimension int) (index.Index, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory", "":
		return index.NewMemory(dimension), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite index requires a path")
		}
		return index.OpenSQLite(cfg.Path, dimension)
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: memory, sqlite)", cfg.Backend)
	}
}

// IngestText ingests raw text under the given document ID.
func (p *Pipeline) IngestText(ctx context.Context, documentID, text string) (*IngestResult, error) {
	return p.ingestor.IngestDocument(ctx, documentID, text)
}

// IngestURI resolves a URI (http(s) URL or file path) to text and ingests
// it under the given document ID.
func (p *Pipeline) IngestURI(ctx context.Context, documentID, uri string) (*IngestResult, error) {
	text, err := p.source(uri).Text(ctx, uri)
	if err != nil {
		return nil, err
	}
	return p.ingestor.Ingest(ctx, model.Document{
		ID:         documentID,
		Text:       text,
		SourceURI:  uri,
		IngestedAt: time.Now().UTC(),
	})
}

// DeleteDocument removes a document from the index and invalidates any
// extraction results computed over it.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	return p.ingestor.DeleteDocument(ctx, documentID)
}

// ExtractFields answers field requests against the current index state.
func (p *Pipeline) ExtractFields(ctx context.Context, scope []string, requests []model.FieldRequest) ([]model.ExtractionRecord, error) {
	return p.querier.ExtractFields(ctx, scope, requests)
}

// DocumentIDs lists the documents currently indexed.
func (p *Pipeline) DocumentIDs(ctx context.Context) ([]string, error) {
	return p.idx.DocumentIDs(ctx)
}

// Len reports the number of indexed chunks.
func (p *Pipeline) Len(ctx context.Context) (int, error) {
	return p.idx.Len(ctx)
}

// Close releases the index backend.
func (p *Pipeline) Close() error {
	return p.idx.Close()
}

func (p *Pipeline) source(uri string) DocumentSource {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return p.http
	}
	return p.files
}
