package extract

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/llm"
	"github.com/docsift/docsift/internal/model"
)

// Orchestrator drives generative field extraction: prompt construction,
// model invocation, strict response validation, and the bounded-retry
// state machine (pending → validating → accepted | retry | degraded).
// It has no side effects beyond the returned records.
type Orchestrator struct {
	provider    llm.Provider
	maxRetries  int
	concurrency int
}

// NewOrchestrator creates an orchestrator over the given provider. A nil
// provider disables generative extraction: every field degrades to a null
// record.
func NewOrchestrator(provider llm.Provider, cfg model.ExtractionConfig) *Orchestrator {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	concurrency := cfg.FieldConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Orchestrator{
		provider:    provider,
		maxRetries:  maxRetries,
		concurrency: concurrency,
	}
}

// Extract resolves every requested field to exactly one record. Fields run
// concurrently up to the configured bound; a field that exhausts its retry
// budget degrades to a null, low-confidence record and never fails the
// batch. The only batch-level failure is cancellation.
func (o *Orchestrator) Extract(ctx context.Context, requests []model.FieldRequest, evidence map[string]model.RetrievalResult) ([]model.ExtractionRecord, error) {
	records := make([]model.ExtractionRecord, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			records[i] = o.extractField(gctx, req, evidence[req.Name])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// extractField resolves one field against its evidence set.
func (o *Orchestrator) extractField(ctx context.Context, req model.FieldRequest, evidence model.RetrievalResult) model.ExtractionRecord {
	// No evidence found is a valid terminal state: the model is never
	// invoked, because it could only invent a value.
	if evidence.Empty() || o.provider == nil {
		return degradedRecord(req)
	}

	prompt := BuildPrompt(req, evidence)
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return degradedRecord(req)
		}

		resp, err := o.provider.Generate(ctx, llm.GenerateRequest{
			System: systemPrompt,
			Prompt: prompt,
		})
		if err != nil {
			// Timeouts and transport failures are recoverable per field.
			prompt = BuildRetryPrompt(req, evidence, fmt.Sprintf("model call failed: %v", err))
			continue
		}

		out, value, err := parseModelOutput(resp.Text, req, evidence)
		if err != nil {
			prompt = BuildRetryPrompt(req, evidence, err.Error())
			continue
		}

		return acceptedRecord(req, out, value, evidence)
	}

	// Retry budget exhausted: degrade rather than guess.
	return degradedRecord(req)
}

// acceptedRecord builds the final record from a validated response.
func acceptedRecord(req model.FieldRequest, out *modelOutput, value model.FieldValue, evidence model.RetrievalResult) model.ExtractionRecord {
	confidence := model.ConfidenceModelLow
	if out.Confidence == "high" && !value.Null {
		confidence = model.ConfidenceModelHigh
	}

	// Provenance keeps evidence rank order and only the cited chunks.
	cited := make(map[string]bool, len(out.SourceChunkIDs))
	for _, id := range out.SourceChunkIDs {
		cited[id] = true
	}
	var provenance []model.ProvenanceRef
	for _, hit := range evidence.Hits {
		if !cited[hit.ChunkID] {
			continue
		}
		provenance = append(provenance, model.ProvenanceRef{
			ChunkID:     hit.ChunkID,
			DocumentID:  hit.DocumentID,
			StartOffset: hit.StartOffset,
			EndOffset:   hit.EndOffset,
		})
	}

	return model.ExtractionRecord{
		FieldName:  req.Name,
		Value:      value,
		Confidence: confidence,
		Score:      out.Score,
		Provenance: provenance,
	}
}

// degradedRecord is the terminal null record: unknown value, low
// confidence, no provenance.
func degradedRecord(req model.FieldRequest) model.ExtractionRecord {
	return model.ExtractionRecord{
		FieldName:  req.Name,
		Value:      model.NullValue(req.Type),
		Confidence: model.ConfidenceModelLow,
		Provenance: []model.ProvenanceRef{},
	}
}
