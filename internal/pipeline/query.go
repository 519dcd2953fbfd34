package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/cache"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/model"
	"github.com/docsift/docsift/internal/retrieve"
)

// Querier composes retrieval and extraction: for each requested field it
// gathers an evidence set and resolves it to exactly one record. Results
// are cached per (scope, field, knobs) and invalidated when any in-scope
// document changes.
type Querier struct {
	retriever    *retrieve.Retriever
	orchestrator *extract.Orchestrator
	cache        *extractionCache
	concurrency  int
	cacheParams  string
}

// NewQuerier wires a querier. Pass a zero TTL to disable result caching.
func NewQuerier(retriever *retrieve.Retriever, orchestrator *extract.Orchestrator, cfg *model.Config) *Querier {
	concurrency := cfg.Extraction.FieldConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var c *extractionCache
	if cfg.Cache.Enabled && cfg.Cache.TTL > 0 {
		c = newExtractionCache(cfg.Cache.TTL)
	}

	// Results depend on the retrieval and model knobs, so they are part of
	// the cache key: changing top_k must not serve stale records.
	params := fmt.Sprintf("k=%d,min=%g,llm=%s/%s,retries=%d",
		cfg.Retrieval.TopK, cfg.Retrieval.MinScore,
		cfg.LLM.Provider, cfg.LLM.Model, cfg.Extraction.MaxRetries)

	return &Querier{
		retriever:    retriever,
		orchestrator: orchestrator,
		cache:        c,
		concurrency:  concurrency,
		cacheParams:  params,
	}
}

// ExtractFields resolves every requested field to one extraction record,
// in request order. Scope, when non-empty, restricts retrieval to those
// documents. Individual field failures degrade to null records; the only
// batch-level error is cancellation or a retrieval infrastructure failure.
func (q *Querier) ExtractFields(ctx context.Context, scope []string, requests []model.FieldRequest) ([]model.ExtractionRecord, error) {
	records := make([]model.ExtractionRecord, len(requests))

	var pending []model.FieldRequest
	pendingAt := make(map[string]int, len(requests))
	for i, req := range requests {
		if rec, ok := q.cacheGet(scope, req); ok {
			records[i] = rec
			continue
		}
		pending = append(pending, req)
		pendingAt[req.Name] = i
	}
	if len(pending) == 0 {
		return records, nil
	}

	evidence := make(map[string]model.RetrievalResult, len(pending))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)
	for _, req := range pending {
		g.Go(func() error {
			result, err := q.retriever.Retrieve(gctx, req, scope)
			if err != nil {
				return err
			}
			mu.Lock()
			evidence[req.Name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fresh, err := q.orchestrator.Extract(ctx, pending, evidence)
	if err != nil {
		return nil, err
	}

	for j, rec := range fresh {
		i := pendingAt[pending[j].Name]
		records[i] = rec
		q.cacheSet(scope, pending[j], rec)
	}
	return records, nil
}

// InvalidateDocument drops every cached result whose scope includes the
// document. Unscoped results cover all documents, so they always drop.
func (q *Querier) InvalidateDocument(documentID string) {
	if q.cache != nil {
		q.cache.invalidate(documentID)
	}
}

func (q *Querier) cacheGet(scope []string, req model.FieldRequest) (model.ExtractionRecord, bool) {
	if q.cache == nil {
		return model.ExtractionRecord{}, false
	}
	return q.cache.get(q.cacheKey(scope, req))
}

func (q *Querier) cacheSet(scope []string, req model.FieldRequest, rec model.ExtractionRecord) {
	if q.cache == nil {
		return
	}
	q.cache.set(q.cacheKey(scope, req), scope, rec)
}

func (q *Querier) cacheKey(scope []string, req model.FieldRequest) string {
	return cache.Key("extract", strings.Join(scope, ","), req.Name, req.Description, string(req.Type), req.Query, q.cacheParams)
}

// extractionCache holds finished records alongside the scope they were
// computed over, so ingestion can invalidate exactly the affected entries.
type extractionCache struct {
	inner *gocache.Cache
}

type extractionCacheEntry struct {
	Scope  []string
	Record model.ExtractionRecord
}

func newExtractionCache(ttl time.Duration) *extractionCache {
	return &extractionCache{
		inner: gocache.New(ttl, 10*time.Minute),
	}
}

func (c *extractionCache) get(key string) (model.ExtractionRecord, bool) {
	v, ok := c.inner.Get(key)
	if !ok {
		return model.ExtractionRecord{}, false
	}
	entry, ok := v.(extractionCacheEntry)
	if !ok {
		return model.ExtractionRecord{}, false
	}
	return entry.Record, true
}

func (c *extractionCache) set(key string, scope []string, rec model.ExtractionRecord) {
	c.inner.Set(key, extractionCacheEntry{Scope: scope, Record: rec}, gocache.DefaultExpiration)
}

func (c *extractionCache) invalidate(documentID string) {
	for key, item := range c.inner.Items() {
		entry, ok := item.Object.(extractionCacheEntry)
		if !ok {
			continue
		}
		if len(entry.Scope) == 0 {
			c.inner.Delete(key)
			continue
		}
		for _, id := range entry.Scope {
			if id == documentID {
				c.inner.Delete(key)
				break
			}
		}
	}
}
