package index

import (
	"context"
	"sort"
	"sync"

	"github.com/docsift/docsift/internal/model"
)

// Memory is an in-process, brute-force cosine index. Suitable for one-shot
// CLI runs and tests; the SQLite backend covers persistence.
type Memory struct {
	mu   sync.RWMutex
	dim  int
	docs map[string]*memoryDoc
}

// memoryDoc keeps a document's entries together with the insertion order
// the document first arrived at, so re-ingestion does not reshuffle
// tie-breaking.
type memoryDoc struct {
	order   int
	entries []model.IndexEntry
}

// NewMemory creates an in-memory index with fixed dimensionality.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dim:  dimension,
		docs: make(map[string]*memoryDoc),
	}
}

// Dimension returns the index's fixed vector dimensionality.
func (m *Memory) Dimension() int { return m.dim }

// Upsert replaces all entries for the document. The whole batch is
// validated before the swap, so readers never see partial-document state.
func (m *Memory) Upsert(ctx context.Context, documentID string, entries []model.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkEntries(m.dim, entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok {
		doc = &memoryDoc{order: len(m.docs)}
		m.docs[documentID] = doc
	}
	doc.entries = append([]model.IndexEntry(nil), entries...)
	return nil
}

// Delete removes all entries for the document. Deleting an unknown
// document is a no-op.
func (m *Memory) Delete(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

type candidate struct {
	hit model.RetrievalHit
	seq int
}

// Search scans every stored entry, scoring by cosine similarity.
func (m *Memory) Search(ctx context.Context, query []float32, k int, filter *Filter) (model.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return model.RetrievalResult{}, err
	}
	if len(query) != m.dim {
		return model.RetrievalResult{}, ErrDimensionMismatch
	}
	if k <= 0 {
		return model.RetrievalResult{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Walk documents in first-insertion order so tie-breaking is stable.
	docIDs := make([]string, 0, len(m.docs))
	for id := range m.docs {
		docIDs = append(docIDs, id)
	}
	sort.Slice(docIDs, func(i, j int) bool {
		return m.docs[docIDs[i]].order < m.docs[docIDs[j]].order
	})

	var candidates []candidate
	seq := 0
	for _, docID := range docIDs {
		doc := m.docs[docID]
		if !filter.allows(docID) {
			seq += len(doc.entries)
			continue
		}
		for _, e := range doc.entries {
			candidates = append(candidates, candidate{
				hit: model.RetrievalHit{
					ChunkID:     e.ChunkID,
					DocumentID:  e.DocumentID,
					Score:       Cosine(query, e.Vector),
					Text:        e.Text,
					StartOffset: e.StartOffset,
					EndOffset:   e.EndOffset,
				},
				seq: seq,
			})
			seq++
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	result := model.RetrievalResult{}
	seen := make(map[string]bool, k)
	for _, c := range candidates {
		if len(result.Hits) == k {
			break
		}
		if seen[c.hit.ChunkID] {
			continue
		}
		seen[c.hit.ChunkID] = true
		result.Hits = append(result.Hits, c.hit)
	}
	return result, nil
}

// Contains reports whether a chunk is currently indexed.
func (m *Memory) Contains(ctx context.Context, chunkID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		for _, e := range doc.entries {
			if e.ChunkID == chunkID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Len returns the total number of indexed entries.
func (m *Memory) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, doc := range m.docs {
		n += len(doc.entries)
	}
	return n, nil
}

// DocumentIDs returns the indexed document IDs in first-insertion order.
func (m *Memory) DocumentIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.docs[ids[i]].order < m.docs[ids[j]].order
	})
	return ids, nil
}

// Close releases the index. The memory backend holds no external
// resources, so this only drops the entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*memoryDoc)
	return nil
}
