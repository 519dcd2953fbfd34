package index

import (
	"context"
	"errors"
	"math"

	"github.com/docsift/docsift/internal/model"
)

// ErrDimensionMismatch signals configuration or model-version drift: a
// vector whose dimensionality differs from the index's fixed D. This is
// fatal for the operation and surfaced to the operator; the index must be
// rebuilt with a consistent embedder before ingestion can continue.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrCorrupted signals that stored entries violate an index invariant
// (undecodable vector, wrong stored dimensionality). Fatal for the
// affected document's entries; other documents are unaffected.
var ErrCorrupted = errors.New("index entries corrupted")

// Filter optionally restricts a search to a set of documents.
type Filter struct {
	DocumentIDs []string
}

func (f *Filter) allows(documentID string) bool {
	if f == nil || len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

// Index stores chunk vectors plus provenance metadata and answers
// nearest-neighbor queries by cosine similarity. Implementations are
// explicit service objects with an open/close lifecycle, never package
// singletons.
//
// Upsert replaces all prior entries for a document atomically: concurrent
// readers observe either the old or the new entry set, never a mixture.
// Calling Upsert twice with identical entries leaves the index unchanged.
type Index interface {
	Upsert(ctx context.Context, documentID string, entries []model.IndexEntry) error
	Delete(ctx context.Context, documentID string) error

	// Search returns up to k entries nearest to the query vector,
	// descending by similarity, ties broken by insertion order (earlier
	// chunk wins). Fewer than k results is not an error; duplicates
	// never occur.
	Search(ctx context.Context, query []float32, k int, filter *Filter) (model.RetrievalResult, error)

	Contains(ctx context.Context, chunkID string) (bool, error)
	Len(ctx context.Context) (int, error)
	DocumentIDs(ctx context.Context) ([]string, error)
	Dimension() int
	Close() error
}

// Cosine computes cosine similarity between two raw (non-normalized)
// vectors: dot product divided by the product of magnitudes. A zero-length
// vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// checkEntries validates an entry batch against the index dimensionality
// before any mutation, so a bad batch can never leave partial state.
func checkEntries(dim int, entries []model.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != dim {
			return ErrDimensionMismatch
		}
	}
	return nil
}
