package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docsift/docsift/internal/cache"
)

// CachingEmbedder wraps another embedder with a vector cache keyed by
// (backend, text), so repeated ingestion of unchanged documents never
// re-hits the backend. Safe because embedders are deterministic for a
// fixed model version.
type CachingEmbedder struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachingEmbedder wraps inner with the given cache.
func NewCachingEmbedder(inner Embedder, c cache.Cache, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: c, ttl: ttl}
}

// Name returns the wrapped backend's name.
func (e *CachingEmbedder) Name() string { return e.inner.Name() }

// Dimension returns the wrapped backend's dimensionality.
func (e *CachingEmbedder) Dimension() int { return e.inner.Dimension() }

// Embed returns a cached vector when present, otherwise delegates and
// stores the result.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if data, found := e.cache.Get(key); found {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && len(vec) == e.inner.Dimension() {
			return vec, nil
		}
		// Undecodable or drifted entry: drop it and re-embed.
		_ = e.cache.Delete(key)
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(vec); err == nil {
		_ = e.cache.Set(key, data, e.ttl)
	}
	return vec, nil
}

// EmbedBatch serves what it can from cache and fetches only the misses in
// one backend batch. A backend failure aborts the whole call so a batch is
// never partially embedded.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if data, found := e.cache.Get(e.key(text)); found {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil && len(vec) == e.inner.Dimension() {
				vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fetched, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fetched), len(missTexts))
	}

	for j, vec := range fetched {
		i := missIdx[j]
		vectors[i] = vec
		if data, err := json.Marshal(vec); err == nil {
			_ = e.cache.Set(e.key(texts[i]), data, e.ttl)
		}
	}
	return vectors, nil
}

func (e *CachingEmbedder) key(text string) string {
	return cache.Key("embed", e.inner.Name(), text)
}
