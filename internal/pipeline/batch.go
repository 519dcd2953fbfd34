package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docsift/docsift/internal/worker"
)

// ingestJob ingests one URI through the pipeline.
type ingestJob struct {
	pipeline   *Pipeline
	documentID string
	uri        string
}

// IngestOutcome is the per-URI result of a batch ingestion.
type IngestOutcome struct {
	DocumentID string        `json:"document_id"`
	URI        string        `json:"uri"`
	Result     *IngestResult `json:"result,omitempty"`
	Err        error         `json:"-"`
}

// GetError implements worker.Result.
func (o *IngestOutcome) GetError() error {
	return o.Err
}

// Execute implements worker.Job.
func (j *ingestJob) Execute(ctx context.Context) worker.Result {
	result, err := j.pipeline.IngestURI(ctx, j.documentID, j.uri)
	return &IngestOutcome{
		DocumentID: j.documentID,
		URI:        j.uri,
		Result:     result,
		Err:        err,
	}
}

// IngestBatch ingests many URIs concurrently through a worker pool, one
// document per URI. A failed URI reports its error in the outcome and
// never aborts the rest of the batch.
func (p *Pipeline) IngestBatch(ctx context.Context, uris []string) []*IngestOutcome {
	workers := p.cfg.Concurrency.IngestWorkers
	if workers <= 0 {
		workers = 1
	}

	pool := worker.NewPool(workers)
	pool.Start()

	// All jobs are submitted before Wait closes the queue; the running
	// workers drain the buffer as we go.
	for _, uri := range uris {
		if ctx.Err() != nil {
			break
		}
		pool.Submit(&ingestJob{
			pipeline:   p,
			documentID: DocumentIDForURI(uri),
			uri:        uri,
		})
	}

	results := pool.Wait()
	outcomes := make([]*IngestOutcome, 0, len(results))
	for _, r := range results {
		if o, ok := r.(*IngestOutcome); ok {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

// DocumentIDForURI derives a readable, stable document ID from a URI:
// the base name for files, host plus path for URLs. Unresolvable URIs get
// a random UUID.
func DocumentIDForURI(uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(uri, "https://"), "http://")
		trimmed = strings.Trim(strings.ReplaceAll(trimmed, "/", "-"), "-")
		if trimmed != "" {
			return trimmed
		}
		return uuid.NewString()
	}
	base := filepath.Base(uri)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return uuid.NewString()
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
