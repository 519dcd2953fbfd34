package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("streaming should be disabled")
		}
		if req.Model != "llama3.2" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.2",
			Response:        `{"value": null, "confidence": "low", "source_chunk_ids": []}`,
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.2", Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "Field: Notional"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.TokensUsed != 15 {
		t.Errorf("expected 15 tokens, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaError{Error: "model 'missing' not found"})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "missing", Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	if _, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestOllamaProvider_RequiresModel(t *testing.T) {
	provider, err := NewOllamaProvider(Config{Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if _, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Error("expected error without a model name")
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Timeout: 5})
	if !provider.IsAvailable(context.Background()) {
		t.Error("expected provider to be available")
	}
}
