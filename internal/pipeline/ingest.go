package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/model"
)

// IngestResult summarizes one document's ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"` // "ingested"
	ChunkCount int    `json:"chunk_count"`
}

// Ingestor composes the splitter, embedder, and index into document
// ingestion: split, embed every chunk, then replace the document's entries
// in one atomic upsert. A failed embedding fails the whole document; the
// index is never left holding a partial entry set.
type Ingestor struct {
	splitter     *chunk.Splitter
	embedder     embed.Embedder
	idx          index.Index
	limiter      Waiter
	limiterKey   string
	embedWorkers int
	maxRetries   int
	onUpsert     func(documentID string)
}

// Waiter is the rate-limit hook the ingestor calls before each backend
// embedding request.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// NewIngestor wires an ingestor. The limiter may be nil (no rate limiting,
// used with the local hashing embedder). onUpsert, when set, runs after
// every successful upsert or delete; the query pipeline uses it to
// invalidate cached extraction results.
func NewIngestor(splitter *chunk.Splitter, embedder embed.Embedder, idx index.Index, limiter Waiter, cfg *model.Config, onUpsert func(documentID string)) *Ingestor {
	embedWorkers := cfg.Concurrency.EmbedWorkers
	if embedWorkers <= 0 {
		embedWorkers = 1
	}
	maxRetries := cfg.Embedding.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Ingestor{
		splitter:     splitter,
		embedder:     embedder,
		idx:          idx,
		limiter:      limiter,
		limiterKey:   "embed:" + embedder.Name(),
		embedWorkers: embedWorkers,
		maxRetries:   maxRetries,
		onUpsert:     onUpsert,
	}
}

// IngestDocument ingests raw text under the given document ID.
func (p *Ingestor) IngestDocument(ctx context.Context, documentID, text string) (*IngestResult, error) {
	return p.Ingest(ctx, model.Document{
		ID:         documentID,
		Text:       text,
		IngestedAt: time.Now().UTC(),
	})
}

// Ingest splits, embeds, and indexes one document. Re-ingesting an
// existing ID replaces its prior entries. Empty or whitespace-only text is
// valid and indexes zero chunks, replacing any prior version.
func (p *Ingestor) Ingest(ctx context.Context, doc model.Document) (*IngestResult, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	chunks := p.splitter.Split(doc.ID, doc.Text)

	entries := make([]model.IndexEntry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.embedWorkers)
	for i, c := range chunks {
		g.Go(func() error {
			vec, err := p.embedChunk(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", c.ID, err)
			}
			entries[i] = model.IndexEntry{
				ChunkID:     c.ID,
				DocumentID:  c.DocumentID,
				Vector:      vec,
				Text:        c.Text,
				StartOffset: c.StartOffset,
				EndOffset:   c.EndOffset,
				Sequence:    c.Sequence,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Single upsert after the full entry set is ready keeps replacement
	// atomic for concurrent readers.
	if err := p.idx.Upsert(ctx, doc.ID, entries); err != nil {
		return nil, fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	if p.onUpsert != nil {
		p.onUpsert(doc.ID)
	}

	return &IngestResult{
		DocumentID: doc.ID,
		Status:     "ingested",
		ChunkCount: len(entries),
	}, nil
}

// DeleteDocument removes a document's entries from the index.
func (p *Ingestor) DeleteDocument(ctx context.Context, documentID string) error {
	if err := p.idx.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if p.onUpsert != nil {
		p.onUpsert(documentID)
	}
	return nil
}

// embedChunk embeds one chunk, retrying backend unavailability with
// exponential backoff under the configured rate limit.
func (p *Ingestor) embedChunk(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	backoff := retry.WithMaxRetries(uint64(p.maxRetries), retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, p.limiterKey); err != nil {
				return err
			}
		}
		v, err := p.embedder.Embed(ctx, text)
		if err != nil {
			// Backend unavailability is transient; anything else
			// (cancellation, bad input) fails immediately.
			if errors.Is(err, embed.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}
