package extract

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/docsift/docsift/internal/llm"
	"github.com/docsift/docsift/internal/model"
)

// scriptedProvider returns canned responses in order, then repeats the
// last one.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int32
}

func (p *scriptedProvider) Name() string                        { return "scripted" }
func (p *scriptedProvider) IsAvailable(_ context.Context) bool  { return true }
func (p *scriptedProvider) Generate(_ context.Context, _ llm.GenerateRequest) (*llm.GenerateResponse, error) {
	n := int(atomic.AddInt32(&p.calls, 1)) - 1
	if n < len(p.errs) && p.errs[n] != nil {
		return nil, p.errs[n]
	}
	i := n
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return &llm.GenerateResponse{Text: p.responses[i], Model: "scripted"}, nil
}

func counterpartyRequest() model.FieldRequest {
	return model.FieldRequest{
		Name:        "Counterparty",
		Description: "the counterparty bank",
		Type:        model.FieldTypeString,
	}
}

func TestExtract_AcceptedFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"value": "BANK ABC", "confidence": "high", "source_chunk_ids": ["doc-1:0"]}`,
	}}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 2, FieldConcurrency: 1})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	r := records[0]
	if r.Value.Text != "BANK ABC" {
		t.Errorf("unexpected value: %+v", r.Value)
	}
	if r.Confidence != model.ConfidenceModelHigh {
		t.Errorf("expected model-high, got %s", r.Confidence)
	}
	if len(r.Provenance) != 1 || r.Provenance[0].ChunkID != "doc-1:0" {
		t.Errorf("unexpected provenance: %+v", r.Provenance)
	}
	if n := atomic.LoadInt32(&provider.calls); n != 1 {
		t.Errorf("expected 1 model call, got %d", n)
	}
}

func TestExtract_NoEvidenceSkipsModel(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"value": "GUESS", "confidence": "high", "source_chunk_ids": ["x"]}`}}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 2, FieldConcurrency: 1})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	r := records[0]
	if !r.Value.Null {
		t.Errorf("expected null value, got %+v", r.Value)
	}
	if r.Confidence != model.ConfidenceModelLow {
		t.Errorf("expected model-low, got %s", r.Confidence)
	}
	if len(r.Provenance) != 0 {
		t.Errorf("expected empty provenance, got %+v", r.Provenance)
	}
	if n := atomic.LoadInt32(&provider.calls); n != 0 {
		t.Errorf("model was invoked %d times despite empty evidence", n)
	}
}

func TestExtract_ForeignChunkRetriedThenAccepted(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"value": "BANK ABC", "confidence": "high", "source_chunk_ids": ["doc-9:9"]}`,
		`{"value": "BANK ABC", "confidence": "high", "source_chunk_ids": ["doc-1:0"]}`,
	}}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 2, FieldConcurrency: 1})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if records[0].Value.Null {
		t.Error("expected accepted value after retry")
	}
	if n := atomic.LoadInt32(&provider.calls); n != 2 {
		t.Errorf("expected 2 model calls, got %d", n)
	}
}

func TestExtract_RetryBudgetExhaustedDegrades(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"value": "BANK ABC", "confidence": "high", "source_chunk_ids": ["doc-9:9"]}`,
	}}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 2, FieldConcurrency: 1})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	r := records[0]
	if !r.Value.Null || r.Confidence != model.ConfidenceModelLow || len(r.Provenance) != 0 {
		t.Errorf("expected degraded null record, got %+v", r)
	}
	// 1 initial attempt + 2 retries.
	if n := atomic.LoadInt32(&provider.calls); n != 3 {
		t.Errorf("expected 3 model calls, got %d", n)
	}
}

func TestExtract_TimeoutIsRecoverable(t *testing.T) {
	provider := &scriptedProvider{
		errs: []error{llm.ErrTimeout},
		responses: []string{
			"",
			`{"value": "BANK ABC", "confidence": "low", "source_chunk_ids": ["doc-1:0"]}`,
		},
	}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 1, FieldConcurrency: 1})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if records[0].Value.Null {
		t.Error("expected recovery after timeout")
	}
	if records[0].Confidence != model.ConfidenceModelLow {
		t.Errorf("low model confidence must map to model-low, got %s", records[0].Confidence)
	}
}

func TestExtract_OneRecordPerField(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"value": null, "confidence": "low", "source_chunk_ids": []}`,
	}}
	o := NewOrchestrator(provider, model.ExtractionConfig{MaxRetries: 0, FieldConcurrency: 4})

	requests := []model.FieldRequest{
		{Name: "Counterparty", Type: model.FieldTypeString},
		{Name: "Notional", Type: model.FieldTypeCurrency},
		{Name: "TradeDate", Type: model.FieldTypeDate},
	}
	records, err := o.Extract(context.Background(), requests,
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if len(records) != len(requests) {
		t.Fatalf("expected %d records, got %d", len(requests), len(records))
	}
	for i, r := range records {
		if r.FieldName != requests[i].Name {
			t.Errorf("record %d is for %s, want %s", i, r.FieldName, requests[i].Name)
		}
	}
}

func TestExtract_NilProviderDegradesAllFields(t *testing.T) {
	o := NewOrchestrator(nil, model.ExtractionConfig{MaxRetries: 2, FieldConcurrency: 2})

	records, err := o.Extract(context.Background(),
		[]model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !records[0].Value.Null {
		t.Error("expected null record without a provider")
	}
}

func TestExtract_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(&scriptedProvider{responses: []string{"{}"}},
		model.ExtractionConfig{MaxRetries: 0, FieldConcurrency: 1})
	_, err := o.Extract(ctx, []model.FieldRequest{counterpartyRequest()},
		map[string]model.RetrievalResult{"Counterparty": evidenceWith("doc-1:0")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
