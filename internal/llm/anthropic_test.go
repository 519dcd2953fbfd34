package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("unexpected x-api-key header: %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}

		resp := anthropicResponse{
			ID:   "msg_123",
			Type: "message",
			Role: "assistant",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: `{"value": "EUR 1,000,000", "confidence": "high", "source_chunk_ids": ["doc-1:0"]}`},
			},
			Model: "claude-3-5-haiku-latest",
		}
		resp.Usage.InputTokens = 30
		resp.Usage.OutputTokens = 12
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	resp, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "Field: Notional"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("expected 42 tokens, got %d", resp.TokensUsed)
	}
}

func TestAnthropicProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "bad-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	if _, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewProvider_Factory(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantNil  bool
		wantErr  bool
		wantName string
	}{
		{"disabled", Config{Provider: ""}, true, false, ""},
		{"openai", Config{Provider: "openai", APIKey: "k"}, false, false, "openai"},
		{"claude alias", Config{Provider: "claude", APIKey: "k"}, false, false, "anthropic"},
		{"ollama", Config{Provider: "ollama"}, false, false, "ollama"},
		{"unknown", Config{Provider: "gemini"}, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if p != nil {
					t.Error("expected nil provider when disabled")
				}
				return
			}
			if p.Name() != tt.wantName {
				t.Errorf("provider name = %s, want %s", p.Name(), tt.wantName)
			}
		})
	}
}
