package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/model"
)

// Retriever turns a field request into a ranked, thresholded evidence set.
// An empty result is a valid terminal state ("no evidence found"), never an
// error: the extraction layer turns it into a null-valued record instead of
// letting the model invent one.
type Retriever struct {
	embedder embed.Embedder
	idx      index.Index
	topK     int
	minScore float64
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder embed.Embedder, idx index.Index, cfg model.RetrievalConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		embedder: embedder,
		idx:      idx,
		topK:     topK,
		minScore: cfg.MinScore,
	}
}

// Retrieve embeds the field query, searches the index, and drops hits
// below the similarity threshold. Scope, when non-empty, restricts the
// search to those documents.
func (r *Retriever) Retrieve(ctx context.Context, req model.FieldRequest, scope []string) (model.RetrievalResult, error) {
	query := BuildQuery(req)

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("embed query for field %q: %w", req.Name, err)
	}

	var filter *index.Filter
	if len(scope) > 0 {
		filter = &index.Filter{DocumentIDs: scope}
	}

	raw, err := r.idx.Search(ctx, vec, r.topK, filter)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("search for field %q: %w", req.Name, err)
	}

	// Hits below the threshold would only feed irrelevant context to the
	// extraction prompt.
	result := model.RetrievalResult{}
	for _, hit := range raw.Hits {
		if hit.Score < r.minScore {
			continue
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// BuildQuery constructs the retrieval query text for a field request: a
// user-supplied natural-language query wins, otherwise name plus
// description.
func BuildQuery(req model.FieldRequest) string {
	if q := strings.TrimSpace(req.Query); q != "" {
		return q
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		return req.Name + ": " + d
	}
	return req.Name
}
