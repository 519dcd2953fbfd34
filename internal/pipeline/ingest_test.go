package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docsift/docsift/internal/chunk"
	"github.com/docsift/docsift/internal/embed"
	"github.com/docsift/docsift/internal/extract"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/llm"
	"github.com/docsift/docsift/internal/model"
	"github.com/docsift/docsift/internal/retrieve"
)

const testDimension = 64

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Embedding.Dimension = testDimension
	cfg.Chunking = model.ChunkingConfig{MaxTokens: 16, Overlap: 4, MinTokens: 2}
	// Hashing vectors over tiny test texts score lower than real
	// embeddings; keep the threshold out of the way.
	cfg.Retrieval.MinScore = 0.05
	cfg.Cache.Enabled = false
	return cfg
}

// newTestComponents wires an ingestor and querier over a hashing embedder
// and in-memory index.
func newTestComponents(t *testing.T, cfg *model.Config, provider llm.Provider) (*Ingestor, *Querier, index.Index) {
	t.Helper()

	embedder := embed.NewHashingEmbedder(testDimension)
	idx := index.NewMemory(testDimension)
	t.Cleanup(func() { idx.Close() })

	retriever := retrieve.NewRetriever(embedder, idx, cfg.Retrieval)
	orchestrator := extract.NewOrchestrator(provider, cfg.Extraction)
	querier := NewQuerier(retriever, orchestrator, cfg)
	ingestor := NewIngestor(chunk.NewSplitter(cfg.Chunking), embedder, idx, nil, cfg, querier.InvalidateDocument)
	return ingestor, querier, idx
}

func TestIngestDocument_EmptyText(t *testing.T) {
	ingestor, _, idx := newTestComponents(t, testConfig(), nil)

	result, err := ingestor.IngestDocument(context.Background(), "doc-1", "   \n\t ")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.ChunkCount != 0 {
		t.Errorf("expected 0 chunks, got %d", result.ChunkCount)
	}
	if result.Status != "ingested" {
		t.Errorf("unexpected status %q", result.Status)
	}
	if n, _ := idx.Len(context.Background()); n != 0 {
		t.Errorf("expected empty index, got %d entries", n)
	}
}

func TestIngestDocument_ReplacesPriorVersion(t *testing.T) {
	ingestor, _, idx := newTestComponents(t, testConfig(), nil)
	ctx := context.Background()

	long := strings.Repeat("alpha beta gamma delta ", 20)
	if _, err := ingestor.IngestDocument(ctx, "doc-1", long); err != nil {
		t.Fatalf("ingest long: %v", err)
	}
	before, _ := idx.Len(ctx)
	if before < 2 {
		t.Fatalf("expected multiple chunks, got %d", before)
	}

	result, err := ingestor.IngestDocument(ctx, "doc-1", "short text only")
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if result.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", result.ChunkCount)
	}
	after, _ := idx.Len(ctx)
	if after != 1 {
		t.Errorf("stale chunks survived re-ingestion: %d entries", after)
	}
	if ok, _ := idx.Contains(ctx, model.ChunkID("doc-1", 1)); ok {
		t.Error("chunk from prior version still present")
	}
}

// failingEmbedder fails every call with a non-retryable error.
type failingEmbedder struct{}

func (failingEmbedder) Name() string   { return "failing" }
func (failingEmbedder) Dimension() int { return testDimension }
func (failingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("boom")
}

func TestIngestDocument_EmbedFailureLeavesIndexUnchanged(t *testing.T) {
	cfg := testConfig()
	ingestor, _, idx := newTestComponents(t, cfg, nil)
	ctx := context.Background()

	if _, err := ingestor.IngestDocument(ctx, "doc-1", "stable earlier content"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	before, _ := idx.Len(ctx)

	broken := NewIngestor(chunk.NewSplitter(cfg.Chunking), failingEmbedder{}, idx, nil, cfg, nil)
	if _, err := broken.IngestDocument(ctx, "doc-1", "replacement content"); err == nil {
		t.Fatal("expected embedding failure to fail ingestion")
	}

	after, _ := idx.Len(ctx)
	if after != before {
		t.Errorf("failed ingestion mutated the index: %d -> %d entries", before, after)
	}
}

// flakyEmbedder fails the first n calls with ErrUnavailable, then
// delegates to a hashing embedder.
type flakyEmbedder struct {
	failures int
	inner    embed.Embedder
}

func (f *flakyEmbedder) Name() string   { return "flaky" }
func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }
func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, embed.ErrUnavailable
	}
	return f.inner.Embed(ctx, text)
}
func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f.inner.EmbedBatch(ctx, texts)
}

func TestIngestDocument_RetriesUnavailableBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency.EmbedWorkers = 1
	cfg.Embedding.MaxRetries = 2

	idx := index.NewMemory(testDimension)
	defer idx.Close()
	embedder := &flakyEmbedder{failures: 1, inner: embed.NewHashingEmbedder(testDimension)}
	ingestor := NewIngestor(chunk.NewSplitter(cfg.Chunking), embedder, idx, nil, cfg, nil)

	result, err := ingestor.IngestDocument(context.Background(), "doc-1", "content behind a flaky backend")
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if result.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", result.ChunkCount)
	}
}

func TestIngestBatch(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.txt": "first document content",
		"b.txt": "second document content",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := testConfig()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	defer p.Close()

	outcomes := p.IngestBatch(context.Background(),
		[]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt"), filepath.Join(dir, "missing.txt")})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	var failed, ok int
	for _, o := range outcomes {
		if o.GetError() != nil {
			failed++
		} else {
			ok++
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("expected 2 successes and 1 failure, got %d/%d", ok, failed)
	}

	ids, err := p.DocumentIDs(context.Background())
	if err != nil {
		t.Fatalf("document IDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 indexed documents, got %v", ids)
	}
}

func TestDocumentIDForURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/data/contracts/trade-1.txt", "trade-1"},
		{"notes.md", "notes"},
		{"https://example.com/docs/page", "example.com-docs-page"},
		{"http://example.com/", "example.com"},
	}
	for _, tt := range tests {
		if got := DocumentIDForURI(tt.uri); got != tt.want {
			t.Errorf("DocumentIDForURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
