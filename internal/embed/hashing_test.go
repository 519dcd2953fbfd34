package embed

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/docsift/docsift/internal/index"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	first, err := e.Embed(ctx, "Notional: EUR 1,000,000")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	second, err := e.Embed(ctx, "Notional: EUR 1,000,000")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical text produced different vectors")
	}
	if len(first) != 64 {
		t.Errorf("expected 64 dimensions, got %d", len(first))
	}
}

func TestHashingEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	doc, _ := e.Embed(ctx, "Counterparty: BANK ABC, Notional: EUR 1,000,000")
	near, _ := e.Embed(ctx, "counterparty bank")
	far, _ := e.Embed(ctx, "weather forecast sunny tomorrow")

	if index.Cosine(doc, near) <= index.Cosine(doc, far) {
		t.Error("overlapping terms should score higher than unrelated text")
	}
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	e := NewHashingEmbedder(128)
	vec, _ := e.Embed(context.Background(), "some document text here")

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(mag)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, |v| = %f", math.Sqrt(mag))
	}
}

func TestHashingEmbedder_BatchPreservesOrder(t *testing.T) {
	e := NewHashingEmbedder(32)
	ctx := context.Background()

	texts := []string{"first chunk", "second chunk", "third chunk"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		if !reflect.DeepEqual(batch[i], single) {
			t.Errorf("batch vector %d differs from single embedding", i)
		}
	}
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder(16)
	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("empty text should produce the zero vector")
		}
	}
}
